package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aification/sessionkit/identity"
)

// promptProvider renders the identity button as a terminal prompt: the credential the
// provider returned in the browser is pasted on stdin.
type promptProvider struct {
	in       io.Reader
	out      io.Writer
	clientID string
	callback func(string)
}

var _ identity.IdentitySignInProvider = (*promptProvider)(nil)

func (p *promptProvider) Initialize(opts identity.InitOptions) error {
	if opts.Callback == nil {
		return errors.New("identity: no credential callback")
	}
	p.clientID = opts.ClientID
	p.callback = opts.Callback
	return nil
}

func (p *promptProvider) RenderButton(target string, opts identity.ButtonOptions) error {
	fmt.Fprintf(p.out, "%s [%s, client %s] credential: ", opts.Text, target, p.clientID)

	line, err := bufio.NewReader(io.LimitReader(p.in, 16<<10)).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("identity: read credential: %w", err)
	}
	fmt.Fprintln(p.out)
	p.callback(strings.TrimSpace(line))
	return nil
}

func (p *promptProvider) DisableAutoSelect() {}

// probe reports the prompt as always ready; the terminal has no script to wait for.
func (p *promptProvider) probe() (identity.IdentitySignInProvider, bool) {
	return p, true
}
