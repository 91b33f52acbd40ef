// Command shiksha is a terminal client for the ShikshaSetu learning
// platform: sign in, browse courses, and join course chat without a
// browser.
//
// Configuration comes from the environment (see internal/config); state
// (the signed-in session, language preference) persists in a local
// SQLite database under the data directory.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/shikshasetu/shiksha-client/internal/api"
	"github.com/shikshasetu/shiksha-client/internal/apperror"
	"github.com/shikshasetu/shiksha-client/internal/auth"
	"github.com/shikshasetu/shiksha-client/internal/chat"
	"github.com/shikshasetu/shiksha-client/internal/config"
	"github.com/shikshasetu/shiksha-client/internal/guard"
	"github.com/shikshasetu/shiksha-client/internal/model"
	"github.com/shikshasetu/shiksha-client/internal/session"
	"github.com/shikshasetu/shiksha-client/internal/storage/sqlite"
)

const usage = `Usage: shiksha <command> [options]

Commands:
  login           sign in with email/password, or -google for OAuth
  signup          create a student or instructor account
  logout          sign out and forget the persisted session
  whoami          show the current identity
  courses         list published courses
  enroll          enroll in a course: enroll <course-id>
  lectures        list a course's lectures: lectures <course-id>
  assignments     list a course's assignments: assignments <course-id>
  submit          hand in an assignment: submit <course-id> <assignment-id> <file>
  chat            join a course chat room: chat <course-id>
  create-course   publish a new course (instructors)
  add-lecture     upload a lecture video (instructors)
  add-assignment  create an assignment (instructors)
  users           list all accounts (admins)
  lang            show or set the language preference: lang [code]
`

func main() {
	level := slog.LevelInfo
	if os.Getenv("SHIKSHA_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()

	// Durable client storage. If it cannot be opened the client still
	// runs — the session just won't survive a restart.
	var store session.Storage = session.Disabled()
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Warn("data directory unavailable, session will not persist",
			slog.String("dir", cfg.DataDir),
			slog.String("error", err.Error()),
		)
	} else if db, err := sqlite.New(cfg.DBPath()); err != nil {
		logger.Warn("local database unavailable, session will not persist",
			slog.String("error", err.Error()),
		)
	} else {
		defer db.Close()
		store = db
	}

	sessions := session.NewStore(store, logger)
	sessions.Restore()

	client := api.New(cfg.APIBaseURL, sessions, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "login":
		err = runLogin(ctx, os.Args[2:], cfg, client, sessions, logger)
	case "signup":
		err = runSignup(ctx, os.Args[2:], client, sessions)
	case "logout":
		sessions.Clear()
		fmt.Println("Signed out.")
	case "whoami":
		err = runWhoami(sessions)
	case "courses":
		err = runCourses(ctx, client, sessions)
	case "enroll":
		err = runEnroll(ctx, os.Args[2:], client, sessions)
	case "lectures":
		err = runLectures(ctx, os.Args[2:], client, sessions)
	case "assignments":
		err = runAssignments(ctx, os.Args[2:], client, sessions)
	case "submit":
		err = runSubmit(ctx, os.Args[2:], client, sessions)
	case "chat":
		err = runChat(ctx, os.Args[2:], cfg, client, sessions, logger)
	case "create-course":
		err = runCreateCourse(ctx, os.Args[2:], client, sessions)
	case "add-lecture":
		err = runAddLecture(ctx, os.Args[2:], client, sessions)
	case "add-assignment":
		err = runAddAssignment(ctx, os.Args[2:], client, sessions)
	case "users":
		err = runUsers(ctx, client, sessions)
	case "lang":
		err = runLang(os.Args[2:], sessions)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, apperror.ErrUnauthenticated) {
			fmt.Fprintln(os.Stderr, "Your session has expired. Run `shiksha login` to sign in again.")
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// guardRoute applies the route's authorization decision before a
// protected command runs.
func guardRoute(sessions *session.Store, route string) error {
	allowed, ok := guard.ForRoute(route)
	if !ok {
		return fmt.Errorf("unknown route %q", route)
	}

	var identity *session.Identity
	if id, signedIn := sessions.Identity(); signedIn {
		identity = &id
	}

	switch guard.Authorize(identity, allowed) {
	case guard.RedirectToLogin:
		return apperror.Unauthenticated("sign in first with `shiksha login`")
	case guard.RedirectToUnauthorized:
		return apperror.Forbidden("your account's role does not have access to this view")
	}
	return nil
}

func runLogin(ctx context.Context, args []string, cfg config.Config, client *api.Client, sessions *session.Store, logger *slog.Logger) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	google := fs.Bool("google", false, "sign in with Google via the platform")
	fs.Parse(args)

	if *google {
		provider := auth.NewProvider(cfg.APIBaseURL, logger)
		token, err := provider.SignIn(ctx, func(authURL string) {
			fmt.Println("Open this URL in your browser to sign in:")
			fmt.Println("  " + authURL)
		})
		if err != nil {
			return err
		}

		// Seed the session from the token's claims, then upgrade to the
		// full profile. The minimal identity is enough if /auth/me fails.
		claims, err := auth.ParseClaims(token)
		if err != nil {
			return err
		}
		sessions.Set(token, model.User{ID: claims.UserID, Role: claims.Role})

		if user, err := client.Me(ctx); err == nil {
			sessions.Set(token, user)
		}

		id, _ := sessions.Identity()
		fmt.Printf("Signed in as %s (%s).\n", displayName(id.User), id.User.Role)
		return nil
	}

	result, err := client.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	sessions.Set(result.Token, result.User)
	fmt.Printf("Signed in as %s (%s).\n", displayName(result.User), result.User.Role)
	return nil
}

func runSignup(ctx context.Context, args []string, client *api.Client, sessions *session.Store) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	role := fs.String("role", "student", "account role: student or instructor")
	fs.Parse(args)

	result, err := client.Signup(ctx, *name, *email, *password, model.Role(*role))
	if err != nil {
		return err
	}
	sessions.Set(result.Token, result.User)
	fmt.Printf("Welcome, %s! Your %s account is ready.\n", displayName(result.User), result.User.Role)
	return nil
}

func runWhoami(sessions *session.Store) error {
	id, ok := sessions.Identity()
	if !ok {
		fmt.Println("Not signed in.")
		return nil
	}
	fmt.Printf("%s <%s> — %s\n", displayName(id.User), id.User.Email, id.User.Role)
	return nil
}

func runCourses(ctx context.Context, client *api.Client, sessions *session.Store) error {
	if err := guardRoute(sessions, "courses"); err != nil {
		return err
	}

	courses, err := client.Courses(ctx)
	if err != nil {
		return err
	}
	if len(courses) == 0 {
		fmt.Println("No courses published yet.")
		return nil
	}
	for _, c := range courses {
		fmt.Printf("%s  %-40s %s (%d enrolled)\n", c.ID, c.Title, displayName(c.Instructor), c.Enrolled)
	}
	return nil
}

func runEnroll(ctx context.Context, args []string, client *api.Client, sessions *session.Store) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: shiksha enroll <course-id>")
	}
	if err := guardRoute(sessions, "courses"); err != nil {
		return err
	}

	if err := client.Enroll(ctx, args[0]); err != nil {
		return err
	}
	fmt.Println("Enrolled.")
	return nil
}

func runLectures(ctx context.Context, args []string, client *api.Client, sessions *session.Store) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: shiksha lectures <course-id>")
	}
	if err := guardRoute(sessions, "courses"); err != nil {
		return err
	}

	lectures, err := client.Lectures(ctx, args[0])
	if err != nil {
		return err
	}
	if len(lectures) == 0 {
		fmt.Println("No lectures yet.")
		return nil
	}
	for _, l := range lectures {
		fmt.Printf("%s  %s\n", l.ID, l.Title)
	}
	return nil
}

func runAssignments(ctx context.Context, args []string, client *api.Client, sessions *session.Store) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: shiksha assignments <course-id>")
	}
	if err := guardRoute(sessions, "courses"); err != nil {
		return err
	}

	assignments, err := client.Assignments(ctx, args[0])
	if err != nil {
		return err
	}
	if len(assignments) == 0 {
		fmt.Println("No assignments yet.")
		return nil
	}
	for _, a := range assignments {
		fmt.Printf("%s  %-40s due %s\n", a.ID, a.Title, a.DueDate.Format("2006-01-02"))
	}
	return nil
}

func runSubmit(ctx context.Context, args []string, client *api.Client, sessions *session.Store) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: shiksha submit <course-id> <assignment-id> <file>")
	}
	if err := guardRoute(sessions, "submissions"); err != nil {
		return err
	}

	f, err := os.Open(args[2])
	if err != nil {
		return fmt.Errorf("opening submission file: %w", err)
	}
	defer f.Close()

	sub, err := client.SubmitAssignment(ctx, args[0], args[1], filepath.Base(args[2]), f)
	if err != nil {
		return err
	}
	fmt.Printf("Submitted at %s.\n", sub.SubmittedAt.Format("2006-01-02 15:04"))
	return nil
}

func runCreateCourse(ctx context.Context, args []string, client *api.Client, sessions *session.Store) error {
	fs := flag.NewFlagSet("create-course", flag.ExitOnError)
	title := fs.String("title", "", "course title")
	description := fs.String("description", "", "course description")
	category := fs.String("category", "", "course category")
	fs.Parse(args)

	if err := guardRoute(sessions, "create-course"); err != nil {
		return err
	}

	course, err := client.CreateCourse(ctx, *title, *description, *category)
	if err != nil {
		return err
	}
	fmt.Printf("Course %s created: %s\n", course.ID, course.Title)
	return nil
}

func runAddLecture(ctx context.Context, args []string, client *api.Client, sessions *session.Store) error {
	fs := flag.NewFlagSet("add-lecture", flag.ExitOnError)
	courseID := fs.String("course", "", "course id")
	title := fs.String("title", "", "lecture title")
	video := fs.String("video", "", "path to the lecture video")
	fs.Parse(args)

	if err := guardRoute(sessions, "manage-course"); err != nil {
		return err
	}

	f, err := os.Open(*video)
	if err != nil {
		return fmt.Errorf("opening video file: %w", err)
	}
	defer f.Close()

	lecture, err := client.AddLecture(ctx, *courseID, *title, filepath.Base(*video), f)
	if err != nil {
		return err
	}
	fmt.Printf("Lecture %s added: %s\n", lecture.ID, lecture.Title)
	return nil
}

func runAddAssignment(ctx context.Context, args []string, client *api.Client, sessions *session.Store) error {
	fs := flag.NewFlagSet("add-assignment", flag.ExitOnError)
	courseID := fs.String("course", "", "course id")
	title := fs.String("title", "", "assignment title")
	description := fs.String("description", "", "assignment description")
	due := fs.String("due", "", "due date, YYYY-MM-DD")
	fs.Parse(args)

	if err := guardRoute(sessions, "manage-course"); err != nil {
		return err
	}

	dueDate, err := time.Parse("2006-01-02", *due)
	if err != nil {
		return fmt.Errorf("parsing -due: %w", err)
	}

	assignment, err := client.AddAssignment(ctx, *courseID, *title, *description, dueDate)
	if err != nil {
		return err
	}
	fmt.Printf("Assignment %s added, due %s.\n", assignment.ID, assignment.DueDate.Format("2006-01-02"))
	return nil
}

func runUsers(ctx context.Context, client *api.Client, sessions *session.Store) error {
	if err := guardRoute(sessions, "admin-users"); err != nil {
		return err
	}

	users, err := client.AdminUsers(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		fmt.Printf("%s  %-30s %-30s %s\n", u.ID, displayName(u), u.Email, u.Role)
	}
	return nil
}

func runChat(ctx context.Context, args []string, cfg config.Config, client *api.Client, sessions *session.Store, logger *slog.Logger) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: shiksha chat <course-id>")
	}
	if err := guardRoute(sessions, "chat"); err != nil {
		return err
	}

	identity, _ := sessions.Identity()
	courseID := args[0]

	printMessage := func(m model.Message) {
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04"), m.Sender.Name, m.Body)
	}

	sess, err := chat.Open(ctx, cfg.SocketURL(), courseID, identity, client, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	// Follow hands back everything received so far and streams the rest
	// through printMessage, so each message prints exactly once.
	history := sess.Follow(printMessage)
	if err := sess.HistoryErr(); err != nil {
		fmt.Println("Could not load earlier messages. New ones will still appear.")
	} else if len(history) == 0 {
		fmt.Println("No messages yet. Start the conversation!")
	}
	for _, m := range history {
		printMessage(m)
	}
	fmt.Println("Type a message and press Enter. /quit leaves the room.")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "/quit" {
				return nil
			}
			if err := sess.Send(line); err != nil {
				fmt.Fprintln(os.Stderr, "Message not sent:", err)
			}
		}
	}
}

func runLang(args []string, sessions *session.Store) error {
	if len(args) == 0 {
		fmt.Println(sessions.Language("en"))
		return nil
	}
	sessions.SetLanguage(args[0])
	fmt.Println("Language preference saved.")
	return nil
}

func displayName(u model.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
