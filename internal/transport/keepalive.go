package transport

import (
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

const keepAliveRequest = "keepalive@openssh.com"

// startKeepAlive sends OpenSSH keep-alive requests on client every interval
// until the returned stop func is called or a request fails.
func startKeepAlive(client *ssh.Client, interval time.Duration) (stop func()) {
	if client == nil || interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if _, _, err := client.SendRequest(keepAliveRequest, true, nil); err != nil {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}
