package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mkrupp/vidrio/internal/domain"
	"github.com/mkrupp/vidrio/internal/infra/database"
	"github.com/mkrupp/vidrio/internal/repo/user"
	"github.com/mkrupp/vidrio/internal/svc/authsvc"
	"github.com/mkrupp/vidrio/internal/svc/authsvc/password"
)

// Test seams for the terminal.
//
//nolint:gochecknoglobals
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// NewUserCmd creates the user subcommand.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	cmd.AddCommand(NewUserAddCmd())

	return cmd
}

// NewUserAddCmd creates the user add subcommand. The account goes through the same
// validation and uniqueness checks as POST /register.
func NewUserAddCmd() *cobra.Command {
	//nolint:exhaustruct
	form := authsvc.RegistrationForm{Accept: true}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a user account",
		Long: `Create a user account. The password is prompted twice without echo;
when stdin is not a terminal it is read as two lines.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}

			if err := promptPassword(cmd, &form); err != nil {
				return err
			}

			return runUserAdd(cmd, cfg, form)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&form.Email, "email", "", "login email (required)")
	flags.StringVar(&form.FirstName, "first-name", "", "first name (required)")
	flags.StringVar(&form.LastName, "last-name", "", "last name (required)")
	flags.StringVar(&form.Address, "address", "", "postal address")
	flags.StringVar(&form.Phone, "phone", "", "phone number")
	flags.StringVar(&form.Company, "company", "", "company name")

	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("first-name")
	_ = cmd.MarkFlagRequired("last-name")

	return cmd
}

func runUserAdd(cmd *cobra.Command, cfg Config, form authsvc.RegistrationForm) (err error) {
	ctx := cmd.Context()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	defer func() {
		err = errors.Join(err, db.Close())
	}()

	outcome, err := register(ctx, db, cfg, form)
	if err != nil {
		return err
	}

	switch outcome.Kind {
	case domain.OutcomeCreated:
		cmd.Printf("user %s created (%s)\n", user.NormalizeEmail(form.Email), outcome.UserID)

		return nil
	case domain.OutcomeValidationError:
		return oops.Code("USER_INVALID").With("kind", outcome.Validation).Errorf("user rejected: %s", outcome.Validation)
	default:
		return oops.Code("USER_CONFLICT").With("kind", outcome.Conflict).Errorf("user rejected: %s", outcome.Conflict)
	}
}

func register(
	ctx context.Context,
	db *database.DB,
	cfg Config,
	form authsvc.RegistrationForm,
) (domain.RegistrationOutcome, error) {
	authSvc, err := authsvc.NewAuthService(
		user.Factory(ctx, db, cfg.User),
		password.NewArgon2idHasher(cfg.Auth.Password),
		cfg.Auth,
	)
	if err != nil {
		return domain.RegistrationOutcome{}, fmt.Errorf("new auth service: %w", err)
	}
	defer authSvc.Close()

	outcome, err := authSvc.Register(ctx, form)
	if err != nil {
		return domain.RegistrationOutcome{}, fmt.Errorf("register: %w", err)
	}

	return outcome, nil
}

// promptPassword fills Password and Confirm from the terminal, or from two stdin lines.
func promptPassword(cmd *cobra.Command, form *authsvc.RegistrationForm) error {
	in := cmd.InOrStdin()

	if file, ok := in.(*os.File); ok && isTerminal(int(file.Fd())) {
		pw, err := readTerminal(cmd, int(file.Fd()), "Password: ")
		if err != nil {
			return err
		}

		confirm, err := readTerminal(cmd, int(file.Fd()), "Confirm password: ")
		if err != nil {
			return err
		}

		form.Password, form.Confirm = pw, confirm

		return nil
	}

	reader := bufio.NewReader(in)

	pw, err := readLine(reader)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	confirm, err := readLine(reader)
	if err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}

	form.Password, form.Confirm = pw, confirm

	return nil
}

func readTerminal(cmd *cobra.Command, fd int, prompt string) (string, error) {
	cmd.Print(prompt)

	pw, err := readPassword(fd)

	cmd.Println()

	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	return string(pw), nil
}

func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err //nolint:wrapcheck
	}

	return strings.TrimRight(line, "\r\n"), nil
}
