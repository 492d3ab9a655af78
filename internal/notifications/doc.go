// Package notifications delivers supervision events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Per-event toggles
// (on_start, on_stop, on_kill) silence the chattier events; errors are always
// sent when a topic exists.
package notifications
