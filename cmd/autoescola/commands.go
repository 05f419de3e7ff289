package main

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/diagnosis/autoescola/internal/accounts"
	"github.com/diagnosis/autoescola/internal/bookingsapi"
	"github.com/diagnosis/autoescola/pkg/config"
)

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	cfg := config.Load()
	opts := &globalOptions{}
	var a *app

	root := &cobra.Command{
		Use:           "autoescola",
		Short:         "Driving school accounts and lesson booking",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			a, err = newApp(cmd.Context(), opts, out, errOut)
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a != nil {
				a.Close()
			}
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.authURL, "auth-url", cfg.Auth.APIBaseURL, "auth API base URL")
	flags.StringVar(&opts.bookingsURL, "bookings-url", cfg.Wizard.BookingsAPIURL, "bookings API base URL")
	flags.StringVar(&opts.tokenFile, "token-file", cfg.Auth.TokenFile, "where the session token is stored")
	flags.DurationVar(&opts.timeout, "timeout", cfg.Auth.APITimeout, "timeout for each API request")
	flags.StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "log level written to stderr")
	flags.BoolVar(&opts.staffOnly, "staff-only", false, "only allow instrutor and funcionario registrations")

	current := func() *app { return a }
	root.AddCommand(
		newLoginCmd(current),
		newRegisterCmd(current),
		newLogoutCmd(current),
		newWhoamiCmd(current),
		newCatalogCmd(current),
		newBookCmd(current),
		newProgressCmd(current),
	)
	return root
}

func newLoginCmd(app func() *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			if password == "" {
				password = os.Getenv("AUTOESCOLA_PASSWORD")
			}
			if err := a.manager.SignIn(cmd.Context(), email, password); err != nil {
				a.printNotice(accounts.DescribeSignInError(err))
				return err
			}
			st := a.manager.State()
			fmt.Fprintf(a.out, "Bem-vindo, %s!\n", displayName(st.User.FullName, st.User.Email))
			if st.Role != "" {
				fmt.Fprintf(a.out, "Perfil: %s (%s)\n", st.Role, st.Role.Dashboard())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (or AUTOESCOLA_PASSWORD)")
	cmd.MarkFlagRequired("email")
	return cmd
}

func newRegisterCmd(app func() *app) *cobra.Command {
	var (
		reg       accounts.Registration
		role      string
		photoPath string
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			reg.Role = accounts.Role(role)
			if reg.Password == "" {
				reg.Password = os.Getenv("AUTOESCOLA_PASSWORD")
			}

			if photoPath != "" {
				f, err := os.Open(photoPath)
				if err != nil {
					return fmt.Errorf("open photo: %w", err)
				}
				defer f.Close()
				info, err := f.Stat()
				if err != nil {
					return fmt.Errorf("stat photo: %w", err)
				}
				reg.Photo = &accounts.Photo{Filename: filepath.Base(photoPath), Size: info.Size(), Content: f}
			}

			res, err := a.manager.SignUp(cmd.Context(), reg)
			if err != nil {
				a.printNotice(accounts.DescribeSignUpError(err))
				return err
			}
			fmt.Fprintln(a.out, "Cadastro realizado com sucesso!")
			if res.SignedIn {
				fmt.Fprintf(a.out, "Sessão iniciada como %s\n", reg.Email)
			} else {
				fmt.Fprintln(a.out, "Faça login para continuar.")
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&reg.FullName, "name", "", "full name")
	f.StringVar(&reg.Email, "email", "", "email")
	f.StringVar(&reg.Phone, "phone", "", "phone number")
	f.StringVar(&reg.Password, "password", "", "password (or AUTOESCOLA_PASSWORD)")
	f.StringVar(&role, "role", string(accounts.RoleStudent), "instrutor, funcionario or aluno")
	f.StringVar(&photoPath, "photo", "", "optional profile photo (jpg, jpeg or png, up to 5MB)")
	return cmd
}

func newLogoutCmd(app func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			if !a.manager.State().SignedIn() {
				fmt.Fprintln(a.out, "Nenhuma sessão ativa.")
				return nil
			}
			err := a.manager.SignOut(cmd.Context())
			fmt.Fprintln(a.out, "Sessão encerrada.")
			if err != nil {
				fmt.Fprintf(a.out, "Aviso: o servidor não confirmou o logout (%v)\n", err)
			}
			return nil
		},
	}
}

func newWhoamiCmd(app func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and role",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			a := app()
			st := a.manager.State()
			if !st.SignedIn() {
				fmt.Fprintln(a.out, "Não autenticado.")
				return nil
			}
			fmt.Fprintf(a.out, "%s <%s>\n", displayName(st.User.FullName, st.User.Email), st.User.Email)
			role := "desconhecido"
			if st.Role != "" {
				role = string(st.Role)
			}
			fmt.Fprintf(a.out, "Perfil: %s\n", role)
			if exp := st.Session.ExpiresAt; exp != nil {
				fmt.Fprintf(a.out, "Expira em: %s\n", exp.Local().Format("02/01/2006 15:04"))
			}
			return nil
		},
	}
}

func newCatalogCmd(app func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List instructors, vehicles, meeting points and time slots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			bc, err := a.bookings()
			if err != nil {
				return signInFirst(a, err)
			}
			cat, err := bc.Catalog(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintln(a.out, "Instrutores:")
			for _, in := range cat.Instructors {
				status := "disponível"
				if !in.Available {
					status = "indisponível"
				}
				fmt.Fprintf(a.out, "  %d  %s  %s  ★ %.1f  (%s)\n", in.ID, in.Name, in.Speciality, in.Rating, status)
			}
			fmt.Fprintln(a.out, "Veículos:")
			for _, v := range cat.Vehicles {
				fmt.Fprintf(a.out, "  %d  %s  %s\n", v.ID, v.Type, v.Description)
			}
			fmt.Fprintln(a.out, "Locais:")
			for _, loc := range cat.Locations {
				fmt.Fprintf(a.out, "  %s\n", loc)
			}
			fmt.Fprintln(a.out, "Horários:")
			for _, slot := range cat.TimeSlots {
				fmt.Fprintf(a.out, "  %s\n", slot)
			}
			return nil
		},
	}
}

func newBookCmd(app func() *app) *cobra.Command {
	var (
		date, slot, location, idemKey string
		instructorID, vehicleID       int64
	)
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book a driving lesson",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			bc, err := a.bookings()
			if err != nil {
				return signInFirst(a, err)
			}
			ctx := cmd.Context()

			draft, err := bc.StartWizard(ctx)
			if err != nil {
				return bookingFailed(a, err)
			}

			sub, err := runWizard(cmd, bc, draft.ID, wizardInput{
				date: date, time: slot, instructorID: instructorID,
				vehicleID: vehicleID, location: location, idempotencyKey: idemKey,
			})
			if err != nil {
				if derr := bc.Discard(ctx, draft.ID); derr != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "discard draft %s: %v\n", draft.ID, derr)
				}
				return bookingFailed(a, err)
			}
			// A replay means the key was already used; this run's draft was never submitted.
			if sub.Replayed {
				if derr := bc.Discard(ctx, draft.ID); derr != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "discard draft %s: %v\n", draft.ID, derr)
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "Agendamento já registrado com esta chave; exibindo a aula original.")
			}

			fmt.Fprintln(a.out, sub.Title)
			fmt.Fprintln(a.out, sub.Message)
			if sub.Lesson != nil {
				fmt.Fprintf(a.out, "Aula #%d · %d min · %s\n", sub.Lesson.ID, sub.Lesson.DurationMinutes, sub.Lesson.Location)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&date, "date", "", "lesson date (YYYY-MM-DD)")
	f.StringVar(&slot, "time", "", "lesson time slot (HH:MM)")
	f.Int64Var(&instructorID, "instructor", 0, "instructor id")
	f.Int64Var(&vehicleID, "vehicle", 0, "vehicle id")
	f.StringVar(&location, "location", "", "meeting point")
	f.StringVar(&idemKey, "idempotency-key", "", "reuse a key to retry a submission safely")
	for _, name := range []string{"date", "time", "instructor", "vehicle", "location"} {
		cmd.MarkFlagRequired(name)
	}
	return cmd
}

type wizardInput struct {
	date, time, location, idempotencyKey string
	instructorID, vehicleID              int64
}

var errStepIncomplete = errors.New("preencha todos os campos desta etapa")

// runWizard walks a draft through its three steps and submits it.
func runWizard(cmd *cobra.Command, bc *bookingsapi.Client, id string, in wizardInput) (*bookingsapi.Submission, error) {
	ctx := cmd.Context()

	if _, err := bc.SetDateTime(ctx, id, in.date, in.time); err != nil {
		return nil, err
	}
	if err := advance(cmd, bc, id); err != nil {
		return nil, err
	}
	if _, err := bc.SelectInstructor(ctx, id, in.instructorID); err != nil {
		return nil, err
	}
	if err := advance(cmd, bc, id); err != nil {
		return nil, err
	}
	if _, err := bc.SelectVehicle(ctx, id, in.vehicleID); err != nil {
		return nil, err
	}
	if _, err := bc.SelectLocation(ctx, id, in.location); err != nil {
		return nil, err
	}
	return bc.Submit(ctx, id, in.idempotencyKey)
}

func advance(cmd *cobra.Command, bc *bookingsapi.Client, id string) error {
	view, moved, err := bc.Advance(cmd.Context(), id)
	if err != nil {
		return err
	}
	if !moved {
		return fmt.Errorf("%w (etapa %d)", errStepIncomplete, view.Step)
	}
	return nil
}

func newProgressCmd(app func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "Show completed lessons toward the required minimum",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			bc, err := a.bookings()
			if err != nil {
				return signInFirst(a, err)
			}
			p, err := bc.Progress(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Aulas concluídas: %d/%d (%d%%)\n", p.CompletedLessons, p.RequiredLessons, p.Percentage)
			fmt.Fprintf(a.out, "Faltam %d aulas\n", p.RemainingLessons)
			return nil
		},
	}
}

func signInFirst(a *app, err error) error {
	fmt.Fprintln(a.out, "Faça login primeiro: autoescola login --email <email>")
	return err
}

func bookingFailed(a *app, err error) error {
	msg := err.Error()
	var apiErr *bookingsapi.Error
	if errors.As(err, &apiErr) {
		msg = apiErr.Message
		for _, field := range slices.Sorted(maps.Keys(apiErr.Details)) {
			msg += fmt.Sprintf("\n%s: %s", field, apiErr.Details[field])
		}
	}
	a.printNotice(accounts.Notice{Title: "Erro ao agendar", Message: msg})
	return err
}

func displayName(name, email string) string {
	if name != "" {
		return name
	}
	return email
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
