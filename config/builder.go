package config

import (
	"sort"

	"github.com/jpalmerr/matterlog"
)

// BuildChannels converts parsed configuration into SDK Channel values,
// ordered by channel name.
func BuildChannels(cfg *Config) ([]matterlog.Channel, error) {
	names := channelNames(cfg.Channels)

	channels := make([]matterlog.Channel, 0, len(names))
	for _, name := range names {
		ch, err := buildChannel(name, cfg.Channels[name], cfg.Server)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

// buildChannel converts a single ChannelConfig to an SDK Channel.
func buildChannel(name string, cc ChannelConfig, server ServerConfig) (matterlog.Channel, error) {
	opts := []matterlog.ChannelOption{
		matterlog.WithTimeout(server.TimeoutOrDefault()),
	}

	if server.UserAgent != "" {
		opts = append(opts, matterlog.WithUserAgent(server.UserAgent))
	}

	if cc.Token != "" {
		opts = append(opts, matterlog.WithToken(cc.Token))
	}

	// zero falls back to the server sleep_time
	if cc.SleepTime != nil && cc.SleepTime.Duration() > 0 {
		opts = append(opts, matterlog.WithInterval(cc.SleepTime.Duration()))
	}

	return matterlog.NewChannel(name, cc.BaseURL, opts...)
}

// BuildOptions converts parsed configuration into the options for
// [matterlog.New]. Logger, echo writer and callbacks are left to the caller.
func BuildOptions(cfg *Config) ([]matterlog.Option, error) {
	channels, err := BuildChannels(cfg)
	if err != nil {
		return nil, err
	}

	opts := []matterlog.Option{
		matterlog.WithChannels(channels...),
		matterlog.WithSaveRoot(cfg.Server.SavePath),
		matterlog.WithPollingInterval(cfg.Server.SleepTimeOrDefault()),
	}
	if cfg.Server.StatusAddr != "" {
		opts = append(opts, matterlog.WithStatusAddr(cfg.Server.StatusAddr))
	}
	return opts, nil
}

// channelNames returns the keys of m in sorted order.
func channelNames(m map[string]ChannelConfig) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
