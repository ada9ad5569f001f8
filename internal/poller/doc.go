// Package poller fetches chat messages from a bridge's HTTP API.
//
// This package is internal to matterlog and implements the message source
// for one channel: it repeatedly requests {base_url}/api/messages, decodes
// the JSON array it returns and hands each message to the caller, retrying
// indefinitely on failure.
//
// The main components are:
//
//   - [Client]: HTTP client wrapper with per-request timeouts and size limits
//   - [Source]: Restartable producer of [Message] values for one endpoint
//   - [Message]: A decoded bridge message
//   - [Hooks]: Callbacks reporting fetch outcomes to the owning worker
//
// Users of the matterlog library should not need to interact with this
// package directly. Channels are configured through the main matterlog package.
package poller
