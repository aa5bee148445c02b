package daemon

import (
	"net"
	"os"
	"time"

	"github.com/grovetools/storymap/config"
	"github.com/grovetools/storymap/errors"
	"github.com/grovetools/storymap/pkg/paths"
	"github.com/sirupsen/logrus"
)

// Dial reports whether something accepts connections on socketPath.
func Dial(socketPath string) bool {
	if _, err := os.Stat(socketPath); err != nil {
		return false
	}
	conn, err := net.DialTimeout("unix", socketPath, 100*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// New returns a Client that will use the daemon if available,
// otherwise falls back to a LocalClient built from cfg.
//
// This implements the "transparent daemon" pattern: callers don't need
// to know whether the daemon is running or not. The same API works
// in both modes. An empty socketPath means the default socket.
func New(socketPath string, cfg *config.Config, logger *logrus.Entry) (Client, error) {
	if socketPath == "" {
		socketPath = paths.SocketPath()
	}
	if Dial(socketPath) {
		if client, err := NewRemoteClient(socketPath); err == nil {
			return client, nil
		}
	}
	return NewLocalClient(cfg, logger)
}

// Connect returns a RemoteClient, or DAEMON_UNAVAILABLE when nothing is
// listening. Use this where the daemon is required (e.g., stop, stream).
func Connect(socketPath string) (*RemoteClient, error) {
	if socketPath == "" {
		socketPath = paths.SocketPath()
	}
	client, _ := NewRemoteClient(socketPath)
	if !Dial(socketPath) || !client.IsRunning() {
		client.Close()
		return nil, errors.DaemonUnavailable(socketPath, nil)
	}
	return client, nil
}
