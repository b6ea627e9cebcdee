// Package ldapcheck implements the LDAP/LDAPS health checker. It supports
// four check methods (anonymous bind, simple bind, root DSE search, and
// an arbitrary search) against either a fresh connection (standalone
// mode) or an application's existing *ldap.Conn (pool mode).
package ldapcheck

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/go-ldap/ldap/v3"
)

// Method is one of the four supported check strategies.
type Method string

const (
	MethodAnonymousBind Method = "anonymous_bind"
	MethodSimpleBind    Method = "simple_bind"
	MethodRootDSE       Method = "root_dse"
	MethodSearch        Method = "search"
)

// Scope is the search scope used by MethodSearch.
type Scope string

const (
	ScopeBase Scope = "base"
	ScopeOne  Scope = "one"
	ScopeSub  Scope = "sub"
)

var scopeMap = map[Scope]int{
	ScopeBase: ldap.ScopeBaseObject,
	ScopeOne:  ldap.ScopeSingleLevel,
	ScopeSub:  ldap.ScopeWholeSubtree,
}

// Option configures a Checker.
type Option func(*Checker)

func WithMethod(m Method) Option               { return func(c *Checker) { c.method = m } }
func WithBind(bindDN, password string) Option  { return func(c *Checker) { c.bindDN, c.password = bindDN, password } }
func WithBaseDN(baseDN string) Option          { return func(c *Checker) { c.baseDN = baseDN } }
func WithSearchFilter(filter string) Option    { return func(c *Checker) { c.searchFilter = filter } }
func WithSearchScope(scope Scope) Option       { return func(c *Checker) { c.searchScope = scope } }
func WithTLS(enabled bool) Option              { return func(c *Checker) { c.useTLS = enabled } }
func WithStartTLS(enabled bool) Option         { return func(c *Checker) { c.startTLS = enabled } }
func WithTLSSkipVerify(skip bool) Option       { return func(c *Checker) { c.tlsSkipVerify = skip } }
func WithConn(conn *ldap.Conn) Option           { return func(c *Checker) { c.conn = conn } }

// Checker probes an LDAP/LDAPS server.
type Checker struct {
	method        Method
	bindDN        string
	password      string
	baseDN        string
	searchFilter  string
	searchScope   Scope
	useTLS        bool
	startTLS      bool
	tlsSkipVerify bool
	conn          *ldap.Conn
}

// New builds an LDAP checker, rejecting at construction time three
// configurations spec'd as fatal rather than discovered on the first
// probe cycle: a simple bind with no bindDN/password, a search with no
// baseDN, and TLS-from-dial combined with StartTLS (the connection cannot
// be both already-TLS and negotiating TLS on a plaintext socket).
func New(opts ...Option) (*Checker, error) {
	c := &Checker{method: MethodRootDSE, searchFilter: "(objectClass=*)", searchScope: ScopeBase}
	for _, o := range opts {
		o(c)
	}
	if c.method == MethodSimpleBind && (c.bindDN == "" || c.password == "") {
		return nil, dephealth.NewConfigError(dephealth.CodeMissingCredentials,
			"ldapcheck: simple_bind requires both a bind DN and a password")
	}
	if c.method == MethodSearch && c.baseDN == "" {
		return nil, dephealth.NewConfigError(dephealth.CodeInvalidConfigRange,
			"ldapcheck: search requires a base DN")
	}
	if c.useTLS && c.startTLS {
		return nil, dephealth.NewConfigError(dephealth.CodeConflictingTLSMode,
			"ldapcheck: specify only one of TLS-from-dial or StartTLS")
	}
	return c, nil
}

func (c *Checker) Kind() dephealth.DependencyType { return dephealth.TypeLDAP }

func (c *Checker) Check(ctx context.Context, ep dephealth.Endpoint) error {
	if c.conn != nil {
		return c.execute(c.conn, ep)
	}

	addr := net.JoinHostPort(ep.Host, ep.Port)

	var d net.Dialer
	rawConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return classifySocketError(ep, err)
	}

	isTLS := c.useTLS
	if c.useTLS {
		rawConn = tls.Client(rawConn, &tls.Config{InsecureSkipVerify: c.tlsSkipVerify}) //nolint:gosec
	}

	conn := ldap.NewConn(rawConn, isTLS)
	conn.Start()
	defer conn.Close()

	if c.startTLS {
		if err := conn.StartTLS(&tls.Config{InsecureSkipVerify: c.tlsSkipVerify}); err != nil { //nolint:gosec
			return classifySocketError(ep, err)
		}
	}

	return c.execute(conn, ep)
}

func (c *Checker) execute(conn *ldap.Conn, ep dephealth.Endpoint) error {
	var err error
	switch c.method {
	case MethodAnonymousBind:
		err = conn.UnauthenticatedBind("")
	case MethodSimpleBind:
		err = conn.Bind(c.bindDN, c.password)
	case MethodRootDSE:
		req := ldap.NewSearchRequest("", ldap.ScopeBaseObject, ldap.NeverDerefAliases, 1, 0, false,
			"(objectClass=*)", []string{"namingContexts", "subschemaSubentry"}, nil)
		_, err = conn.Search(req)
	case MethodSearch:
		req := ldap.NewSearchRequest(c.baseDN, scopeMap[c.searchScope], ldap.NeverDerefAliases, 1, 0, false,
			c.searchFilter, []string{"dn"}, nil)
		_, err = conn.Search(req)
	}
	if err != nil {
		return classifyBindError(ep, err)
	}
	return nil
}

func classifyBindError(ep dephealth.Endpoint, err error) error {
	target := net.JoinHostPort(ep.Host, ep.Port)
	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		switch ldapErr.ResultCode {
		case ldap.LDAPResultInvalidCredentials, ldap.LDAPResultInsufficientAccessRights:
			return &dephealth.AuthError{Msg: fmt.Sprintf("LDAP auth error at %s: %v", target, err)}
		case ldap.LDAPResultBusy, ldap.LDAPResultUnavailable, ldap.LDAPResultUnwillingToPerform:
			return &dephealth.UnhealthyError{Msg: fmt.Sprintf("LDAP server %s unhealthy: %v", target, err), Detail: "ldap_unavailable"}
		}
	}
	return classifySocketError(ep, err)
}

func classifySocketError(ep dephealth.Endpoint, err error) error {
	target := net.JoinHostPort(ep.Host, ep.Port)

	if errors.Is(err, context.DeadlineExceeded) {
		return &dephealth.TimeoutError{Msg: fmt.Sprintf("LDAP connection to %s timed out: %v", target, err)}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED) {
		return &dephealth.ConnectionRefusedError{Msg: fmt.Sprintf("LDAP connection to %s refused: %v", target, err)}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &dephealth.DNSError{Msg: fmt.Sprintf("LDAP DNS error for %s: %v", target, err)}
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "tls"), strings.Contains(lower, "ssl"), strings.Contains(lower, "certificate"):
		return &dephealth.TLSError{Msg: fmt.Sprintf("LDAP TLS error at %s: %v", target, err)}
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"):
		return &dephealth.TimeoutError{Msg: fmt.Sprintf("LDAP connection to %s timed out: %v", target, err)}
	case strings.Contains(lower, "refused"):
		return &dephealth.ConnectionRefusedError{Msg: fmt.Sprintf("LDAP connection to %s refused: %v", target, err)}
	}
	return fmt.Errorf("ldapcheck: connection to %s failed: %w", target, err)
}

func init() {
	dephealth.RegisterChecker(dephealth.TypeLDAP, func(o dephealth.ProbeOptions) (dephealth.Checker, error) {
		opts := []Option{}
		if o.LDAPBindDN != "" {
			opts = append(opts, WithMethod(MethodSimpleBind), WithBind(o.LDAPBindDN, o.LDAPPassword))
		}
		if o.LDAPBaseDN != "" {
			opts = append(opts, WithBaseDN(o.LDAPBaseDN))
		}
		c, err := New(opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}
