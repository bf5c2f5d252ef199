// Package command implements the session protocol: the per-connection
// authentication state machine, verb dispatch and the debit/refund
// discipline around metered calculation.
package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/notepid/calcserv/internal/eval"
	"github.com/notepid/calcserv/internal/metrics"
	"github.com/notepid/calcserv/internal/registry"
	"github.com/notepid/calcserv/internal/store"
	"github.com/notepid/calcserv/internal/user"
)

// Gateway is the slice of the persistence layer the dispatcher consumes.
type Gateway interface {
	FetchUserByLogin(ctx context.Context, login string) (*user.User, error)
	InsertNewUser(ctx context.Context, login, passwordHash string, role user.Role, balance int64) (*user.User, error)
	UpdateUserBalance(ctx context.Context, userID, balance int64) error
	InsertCalculationHistory(ctx context.Context, userID int64, expression, result string) error
}

// Config holds metering parameters.
type Config struct {
	// Cost is debited from the balance per successful calc. Defaults to 1.
	Cost int64
	// DefaultBalance is granted to accounts created over the wire.
	DefaultBalance int64
}

// Dispatcher parses request lines and routes them to verb handlers.
type Dispatcher struct {
	gw   Gateway
	reg  *registry.Registry
	eval *eval.Evaluator
	cfg  Config
	log  zerolog.Logger
}

// New creates a dispatcher.
func New(gw Gateway, reg *registry.Registry, ev *eval.Evaluator, cfg Config, log zerolog.Logger) *Dispatcher {
	if cfg.Cost <= 0 {
		cfg.Cost = 1
	}
	return &Dispatcher{gw: gw, reg: reg, eval: ev, cfg: cfg, log: log}
}

// Handle processes one raw request and returns the response text. Typed
// errors (see errors.go) are returned for the session loop to render;
// they never change connection state beyond what the failing handler
// already rolled back.
func (d *Dispatcher) Handle(ctx context.Context, c *Conn, raw string) (string, error) {
	line := strings.TrimRight(raw, "\r\n \t")

	verb, rest := splitVerb(line)
	if verb == "" {
		return "", ErrSyntax
	}

	switch verb {
	case "login":
		return d.handleLogin(ctx, c, fields(rest))
	case "password":
		return d.handlePassword(ctx, c, fields(rest))
	case "register":
		return d.handleRegister(ctx, c, fields(rest))
	case "calc":
		return d.handleCalc(ctx, c, strings.TrimSpace(rest))
	case "balance":
		return d.handleBalance(ctx, c, fields(rest))
	case "logout":
		return d.handleLogout(c, fields(rest))
	case "exit":
		return d.handleExit(c, fields(rest))
	default:
		return "", ErrUnknownCommand
	}
}

// Verb extracts the command verb from a raw request line, for logging and
// metrics. Empty when the line has no leading alphabetic token.
func Verb(raw string) string {
	verb, _ := splitVerb(strings.TrimRight(raw, "\r\n \t"))
	return verb
}

// splitVerb takes the leading alphabetic run as the verb; everything after
// it (whitespace-separated or not) is the argument remainder.
func splitVerb(line string) (string, string) {
	i := 0
	for i < len(line) {
		c := line[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			break
		}
		i++
	}
	return line[:i], line[i:]
}

func fields(rest string) []string {
	return strings.Fields(rest)
}

func (d *Dispatcher) handleLogin(ctx context.Context, c *Conn, args []string) (string, error) {
	if len(args) == 0 {
		return "", ErrMissingLogin
	}
	if len(args) != 1 {
		return "", ErrSyntax
	}
	name := args[0]

	switch c.State {
	case StateAwaitingLogin:
		ref, shared, err := d.reg.Acquire(ctx, name, c.ID)
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNoSuchLogin
		}
		if err != nil {
			return "", &PersistError{Op: "fetch user", Cause: err}
		}
		c.Ref = ref
		c.State = StateAwaitingPassword
		if shared {
			return fmt.Sprintf("You may proceed. Enter the password for %s. You have another session", name), nil
		}
		return fmt.Sprintf("You may proceed. Enter the password for %s", name), nil

	case StateRegisteringLogin:
		if d.reg.Live(name) {
			return "", ErrAlreadyLive
		}
		_, err := d.gw.FetchUserByLogin(ctx, name)
		if err == nil {
			return "", ErrAlreadyRegistered
		}
		if !errors.Is(err, store.ErrNotFound) {
			return "", &PersistError{Op: "fetch user", Cause: err}
		}
		c.PendingLogin = name
		c.State = StateRegisteringPassword
		return fmt.Sprintf("You may proceed. Enter the password for %s", name), nil

	default:
		return "", &StateError{
			Verb:     "login",
			Expected: []State{StateAwaitingLogin, StateRegisteringLogin},
			Actual:   c.State,
		}
	}
}

func (d *Dispatcher) handlePassword(ctx context.Context, c *Conn, args []string) (string, error) {
	if len(args) == 0 {
		return "", ErrMissingPassword
	}
	if len(args) != 1 {
		return "", ErrSyntax
	}
	password := args[0]

	switch c.State {
	case StateAwaitingPassword:
		u := c.User()
		if !user.CheckPassword(password, u.PasswordHash) {
			return "", ErrIncorrectPassword
		}
		c.State = StateAuthenticated
		return fmt.Sprintf("User %q successfully authenticated", u.Login), nil

	case StateRegisteringPassword:
		hash, err := user.HashPassword(password)
		if err != nil {
			return "", &PersistError{Op: "hash password", Cause: err}
		}
		name := c.PendingLogin
		if _, err := d.gw.InsertNewUser(ctx, name, hash, user.RoleUser, d.cfg.DefaultBalance); err != nil {
			return "", &PersistError{Op: "insert user", Cause: err}
		}
		c.PendingLogin = ""
		c.State = StateAwaitingLogin
		d.log.Info().Str("login", name).Str("conn", c.ID).Msg("user registered")
		return fmt.Sprintf("User %s registered successfully. Log in to continue", name), nil

	default:
		return "", &StateError{
			Verb:     "password",
			Expected: []State{StateAwaitingPassword, StateRegisteringPassword},
			Actual:   c.State,
		}
	}
}

func (d *Dispatcher) handleRegister(ctx context.Context, c *Conn, args []string) (string, error) {
	if c.State != StateAuthenticated {
		return "", &StateError{
			Verb:     "register",
			Expected: []State{StateAuthenticated},
			Actual:   c.State,
		}
	}
	if !c.User().IsAdmin() {
		return "", ErrAdminOnly
	}

	switch len(args) {
	case 0:
		// Interactive flow. The admin's own session is surrendered: the
		// connection walks REGISTERING_LOGIN → REGISTERING_PASSWORD and
		// lands back in AWAITING_LOGIN once the new account is stored.
		c.ReleaseUser()
		c.State = StateRegisteringLogin
		return `You may proceed. Enter the word "login" and the login you wish to register`, nil

	case 2:
		name, password := args[0], args[1]
		if d.reg.Live(name) {
			return "", ErrAlreadyLive
		}
		_, err := d.gw.FetchUserByLogin(ctx, name)
		if err == nil {
			return "", ErrAlreadyRegistered
		}
		if !errors.Is(err, store.ErrNotFound) {
			return "", &PersistError{Op: "fetch user", Cause: err}
		}
		hash, err := user.HashPassword(password)
		if err != nil {
			return "", &PersistError{Op: "hash password", Cause: err}
		}
		if _, err := d.gw.InsertNewUser(ctx, name, hash, user.RoleUser, d.cfg.DefaultBalance); err != nil {
			return "", &PersistError{Op: "insert user", Cause: err}
		}
		d.log.Info().Str("login", name).Str("admin", c.User().Login).Msg("user registered")
		return fmt.Sprintf("User %q registered successfully", name), nil

	default:
		return "", ErrSyntax
	}
}

func (d *Dispatcher) handleCalc(ctx context.Context, c *Conn, expr string) (string, error) {
	if c.State != StateAuthenticated {
		return "", &StateError{
			Verb:     "calc",
			Expected: []State{StateAuthenticated},
			Actual:   c.State,
		}
	}

	var result string
	err := c.Ref.Update(func(u *user.User) error {
		if u.Balance < d.cfg.Cost {
			return ErrInsufficientBalance
		}

		// Debit/refund protocol: charge up front, give the money back if
		// evaluation fails so a failing calc never consumes balance.
		u.Balance -= d.cfg.Cost
		v, eerr := d.eval.Evaluate(expr)
		if eerr != nil {
			u.Balance += d.cfg.Cost
			return &EvalError{Cause: eerr}
		}
		result = eval.FormatResult(v)
		// The debit is final from here on, persisted or not.
		metrics.CalcBalanceDebited.Add(float64(d.cfg.Cost))

		if perr := d.gw.UpdateUserBalance(ctx, u.ID, u.Balance); perr != nil {
			// The in-memory debit stands: the work was delivered and the
			// registry is authoritative while the user is live. The next
			// persisted mutation writes the cached balance through.
			d.log.Error().Err(perr).Str("login", u.Login).Int64("balance", u.Balance).
				Msg("balance persist failed after successful calc; cache ahead of store")
			return &PersistError{Op: "update balance", Cause: perr}
		}
		if perr := d.gw.InsertCalculationHistory(ctx, u.ID, expr, result); perr != nil {
			d.log.Error().Err(perr).Str("login", u.Login).Msg("history persist failed")
			return &PersistError{Op: "insert history", Cause: perr}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func (d *Dispatcher) handleBalance(ctx context.Context, c *Conn, args []string) (string, error) {
	if c.State != StateAuthenticated {
		return "", &StateError{
			Verb:     "balance",
			Expected: []State{StateAuthenticated},
			Actual:   c.State,
		}
	}

	switch len(args) {
	case 0:
		var balance int64
		_ = c.Ref.Update(func(u *user.User) error {
			balance = u.Balance
			return nil
		})
		return strconv.FormatInt(balance, 10), nil

	case 1:
		if !c.User().IsAdmin() {
			return "", ErrAdminOnly
		}
		var balance int64
		err := d.reg.Mutate(ctx, args[0], func(u *user.User) error {
			balance = u.Balance
			return nil
		})
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNoSuchLogin
		}
		if err != nil {
			return "", &PersistError{Op: "fetch user", Cause: err}
		}
		return strconv.FormatInt(balance, 10), nil

	case 3:
		if !c.User().IsAdmin() {
			return "", ErrAdminOnly
		}
		target, op := args[0], args[1]
		amount, perr := strconv.ParseInt(args[2], 10, 64)
		if perr != nil {
			return "", ErrSyntax
		}
		if op != "set" && op != "add" {
			return "", ErrSyntax
		}

		var balance int64
		err := d.reg.Mutate(ctx, target, func(u *user.User) error {
			next := amount
			if op == "add" {
				next = u.Balance + amount
			}
			if next < 0 {
				return ErrNegativeBalance
			}
			if uerr := d.gw.UpdateUserBalance(ctx, u.ID, next); uerr != nil {
				return &PersistError{Op: "update balance", Cause: uerr}
			}
			u.Balance = next
			balance = next
			return nil
		})
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNoSuchLogin
		}
		if err != nil {
			return "", err
		}
		d.log.Info().Str("login", target).Str("op", op).Int64("balance", balance).
			Str("admin", c.User().Login).Msg("balance updated")
		if op == "set" {
			return fmt.Sprintf("Balance for %q set to %d", target, balance), nil
		}
		return fmt.Sprintf("Balance for %q is now %d", target, balance), nil

	default:
		return "", ErrSyntax
	}
}

func (d *Dispatcher) handleLogout(c *Conn, args []string) (string, error) {
	if len(args) != 0 {
		return "", ErrSyntax
	}
	if c.State != StateAuthenticated {
		return "", &StateError{
			Verb:     "logout",
			Expected: []State{StateAuthenticated},
			Actual:   c.State,
		}
	}
	name := c.User().Login
	c.ReleaseUser()
	c.State = StateAwaitingLogin
	return fmt.Sprintf("User %q logged out successfully", name), nil
}

func (d *Dispatcher) handleExit(c *Conn, args []string) (string, error) {
	if len(args) != 0 {
		return "", ErrSyntax
	}
	if c.State != StateAuthenticated {
		return "", &StateError{
			Verb:     "exit",
			Expected: []State{StateAuthenticated},
			Actual:   c.State,
		}
	}
	name := c.User().Login
	c.ReleaseUser()
	c.State = StateAwaitingLogin
	c.CloseRequested = true
	return fmt.Sprintf("User %q logged out successfully. Goodbye", name), nil
}
