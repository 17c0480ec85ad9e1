package cli

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kurun/runcheck/internal/output"
	"github.com/kurun/runcheck/internal/session"
	rcerr "github.com/kurun/runcheck/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	loginEmail         string
	loginPasswordStdin bool
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var loginCmd = &cobra.Command{
	Use:     "login",
	Short:   "Sign in and store the session",
	GroupID: groupAuth,
	Long: `Sign in with email and password. The returned access token, refresh token,
expiry and user profile are written to the credential store and the refresh
timer is armed.

Example:
  runcheck login --email a@ku.th
  echo "$PASSWORD" | runcheck login --email a@ku.th --password-stdin`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var logoutCmd = &cobra.Command{
	Use:     "logout",
	Short:   "Clear the stored session",
	GroupID: groupAuth,
	Long:    `Remove every stored credential and cancel the refresh timer.`,
	Args:    cobra.NoArgs,
	RunE:    runLogout,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	Short:   "Show the signed-in user",
	GroupID: groupAuth,
	Long: `Show the user profile of the current session. An expired access token is
refreshed first when a refresh token is held.`,
	Args: cobra.NoArgs,
	RunE: runWhoami,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email (prompted when omitted)")
	loginCmd.Flags().BoolVar(&loginPasswordStdin, "password-stdin", false, "read the password from stdin")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	mgr, err := cc.Session()
	if err != nil {
		return err
	}

	email := strings.TrimSpace(loginEmail)
	if email == "" {
		if email, err = promptEmailFn(); err != nil {
			return err
		}
	}

	var password string
	if loginPasswordStdin {
		password, err = readPasswordFrom(cmd.InOrStdin())
	} else {
		password, err = promptPasswordFn("Password: ")
	}
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, cc.requestTimeout())
	defer cancel()

	resp, err := cc.Auth.Login(ctx, email, password)
	if err != nil {
		cc.debug("login failed for %s: %v", email, err)
		return err
	}

	mgr.Login(*resp)
	st := mgr.State()
	if !st.IsAuthenticated() {
		return rcerr.WithDetails(rcerr.ErrMalformedResponse, map[string]string{"reason": "login returned no session"})
	}

	if backend, persistent := cc.StoreLabel(); !persistent {
		output.Warnf(cmd.ErrOrStderr(), "credential store %q is not persistent; the session ends with this process", backend)
	}

	return cc.Emit(cmd.OutOrStdout(), sessionView(cc, mgr, st), func(w io.Writer) error {
		output.Successf(w, "Signed in as %s", displayUser(st.User, email))
		return nil
	})
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	mgr, err := cc.Session()
	if err != nil {
		return err
	}

	wasSignedIn := mgr.State().IsAuthenticated() || mgr.State().HasRefreshToken()
	mgr.Logout()

	result := map[string]any{"logged_out": true, "had_session": wasSignedIn}
	return cc.Emit(cmd.OutOrStdout(), result, func(w io.Writer) error {
		if !wasSignedIn {
			output.Info(w, "No active session")
			return nil
		}
		output.Success(w, "Signed out")
		return nil
	})
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	mgr, err := cc.Session()
	if err != nil {
		return err
	}

	if !ensureSession(cmd, cc, mgr) {
		return notAuthenticated()
	}

	user := mgr.State().User
	return cc.Emit(cmd.OutOrStdout(), user, func(w io.Writer) error {
		if user == nil {
			outln(w, "Signed in (no profile stored)")
			return nil
		}
		_, err := output.NewFields().
			Add("Email", user.Email).
			Add("Name", user.Name).
			Add("ID", user.ID).
			Add("Role", user.Role).
			WriteTo(w)
		return err
	})
}

// ensureSession returns true once the manager holds a usable access token,
// refreshing when the token is expired or missing and a refresh token exists.
func ensureSession(cmd *cobra.Command, cc *CommandContext, mgr *session.Manager) bool {
	if mgr.CheckTokenValidity() {
		return true
	}
	// CheckTokenValidity may have started a background refresh.
	mgr.Wait()
	if mgr.CheckTokenValidity() {
		return true
	}
	if !mgr.State().HasRefreshToken() {
		return false
	}

	ctx, cancel := contextWithTimeout(cmd, cc.requestTimeout())
	defer cancel()
	return mgr.RefreshAccessToken(ctx)
}

func notAuthenticated() error {
	return rcerr.WithSuggestion(rcerr.ErrNotAuthenticated, "run 'runcheck login' to sign in")
}

func displayUser(u *session.UserProfile, fallback string) string {
	if u == nil {
		return fallback
	}
	switch {
	case u.Name != "" && u.Email != "":
		return u.Name + " <" + u.Email + ">"
	case u.Email != "":
		return u.Email
	case u.Name != "":
		return u.Name
	}
	return fallback
}
