package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/aussiebroadwan/maidrobe/internal/auth/app"
	"github.com/aussiebroadwan/maidrobe/internal/auth/domain"
	"github.com/aussiebroadwan/maidrobe/internal/auth/telemetry"
	"github.com/common-nighthawk/go-figure"
)

const commandTimeout = 2 * time.Minute

const usage = `usage: maidrobe <command> [flags]

commands:
  login -email <email>           sign in (password read from MAIDROBE_PASSWORD or stdin)
  logout                         end the session on this device
  reset-password -email <email>  request a password recovery email
  resend-verification -email <email>
                                 re-send the sign-up confirmation email
  status [-verify]               show the stored session, optionally confirmed remotely
  run                            keep the session fresh until interrupted
  version                        print the version
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]

	switch cmd {
	case "version":
		displayAppname("maidrobe")
		fmt.Println(app.BuildVersion)
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	application, err := app.New(*cfg, app.Options{})
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if cmd == "run" {
		if err := application.Run(); err != nil {
			log.Fatalf("application error: %v", err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	err = runCommand(ctx, application, cmd, args)
	cancel()

	if shutdownErr := application.Shutdown(); shutdownErr != nil {
		log.Printf("shutdown: %v", shutdownErr)
	}

	if err != nil {
		var authErr *domain.AuthError
		if errors.As(err, &authErr) {
			fmt.Fprintln(os.Stderr, authErr.Message)
			os.Exit(1)
		}
		log.Fatalf("%s: %v", cmd, err)
	}
}

func runCommand(ctx context.Context, application *app.Application, cmd string, args []string) error {
	application.Restore(ctx)

	switch cmd {
	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		email := fs.String("email", "", "account email")
		_ = fs.Parse(args)

		password, err := readPassword(os.Stdin)
		if err != nil {
			return err
		}

		session, err := application.Login.Login(ctx, *email, password)
		if err != nil {
			return err
		}
		fmt.Printf("signed in as %s\n", telemetry.RedactEmail(session.User.Email))
		if !session.User.EmailConfirmed() {
			fmt.Println("email address not yet verified")
		}
		return nil

	case "logout":
		if err := application.Logout.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("signed out")
		return nil

	case "reset-password":
		fs := flag.NewFlagSet("reset-password", flag.ExitOnError)
		email := fs.String("email", "", "account email")
		_ = fs.Parse(args)

		if err := application.PasswordReset.RequestReset(ctx, *email); err != nil {
			return err
		}
		fmt.Println("if an account exists for that address, a reset link is on its way")
		return nil

	case "resend-verification":
		fs := flag.NewFlagSet("resend-verification", flag.ExitOnError)
		email := fs.String("email", "", "account email")
		_ = fs.Parse(args)

		if err := application.Verification.Resend(ctx, *email); err != nil {
			return err
		}
		fmt.Println("verification email sent")
		return nil

	case "status":
		fs := flag.NewFlagSet("status", flag.ExitOnError)
		verify := fs.Bool("verify", false, "confirm the session with the Auth API")
		_ = fs.Parse(args)

		if err := printStatus(os.Stdout, application); err != nil {
			return err
		}
		if !*verify || !application.State.Snapshot().LoggedIn() {
			return nil
		}
		user, err := application.VerifySession(ctx)
		if err != nil {
			return fmt.Errorf("session not accepted by the Auth API: %w", err)
		}
		fmt.Printf("confirmed by the Auth API as %s\n", user.ID)
		return nil

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printStatus(w io.Writer, application *app.Application) error {
	snap := application.State.Snapshot()
	if !snap.LoggedIn() {
		fmt.Fprintln(w, "not signed in")
		if snap.LogoutReason != "" {
			fmt.Fprintf(w, "last logout: %s\n", snap.LogoutReason)
		}
		return nil
	}

	fmt.Fprintf(w, "signed in as %s (%s)\n", telemetry.RedactEmail(snap.User.Email), snap.User.ID)
	if !snap.Token.ExpiresAt.IsZero() {
		fmt.Fprintf(w, "token expires %s\n", snap.Token.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}

// readPassword takes MAIDROBE_PASSWORD when set, otherwise one line of r.
func readPassword(r io.Reader) (string, error) {
	if p := os.Getenv("MAIDROBE_PASSWORD"); p != "" {
		return p, nil
	}

	fmt.Fprint(os.Stderr, "password: ")
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
