package main

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// consoleNavigator is the CLI's navigation layer: a redirect to the login
// route becomes a single notice telling the user to sign in again.
type consoleNavigator struct {
	w     io.Writer
	route string

	mu        sync.Mutex
	redirects []string
}

func newConsoleNavigator(w io.Writer) *consoleNavigator {
	return &consoleNavigator{w: w}
}

// CurrentRoute reports the route of the running command.
func (n *consoleNavigator) CurrentRoute() string {
	return n.route
}

// Redirect prints the notice.
func (n *consoleNavigator) Redirect(_ context.Context, route string) error {
	n.mu.Lock()
	n.redirects = append(n.redirects, route)
	n.mu.Unlock()

	_, err := fmt.Fprintf(n.w, "Session ended; sign in again with 'authwire login' (%s).\n", route)

	return err
}

func (n *consoleNavigator) redirectCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return len(n.redirects)
}
