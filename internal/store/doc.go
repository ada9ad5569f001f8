// Package store keeps the latest status of every channel worker.
//
// This package is internal to matterlog. It holds one [ChannelStatus] per
// channel and implements a publish-subscribe pattern so the status API can
// stream changes to connected clients.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [ChannelStatus]: Storage representation of a channel worker
//
// Publishing never blocks a worker. A subscriber that lags loses its oldest
// unread changes and keeps the newest.
package store
