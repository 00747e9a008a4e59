package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/enrollflow"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/pkg/config"
	"github.com/noah-isme/course-enrollment-api/pkg/enrollclient"
	"github.com/noah-isme/course-enrollment-api/pkg/logger"
)

// fieldFlags collects repeated -field key=value pairs.
type fieldFlags map[string]string

func (f fieldFlags) String() string {
	parts := make([]string, 0, len(f))
	for k, v := range f {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (f fieldFlags) Set(raw string) error {
	key, value, ok := strings.Cut(raw, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("expected key=value, got %q", raw)
	}
	f[strings.TrimSpace(key)] = value
	return nil
}

type printNavigator struct{}

func (printNavigator) ToLogin() {
	fmt.Println("-> log in first: set ENROLL_API_TOKEN or pass -token")
}

func (printNavigator) ToEnrollment(record *models.EnrollmentRecord) {
	fmt.Printf("-> enrollment request %s created with status %s\n", record.ID, record.Status)
}

func main() {
	var (
		courseID   string
		method     string
		proofPath  string
		name       string
		email      string
		phone      string
		baseURL    string
		token      string
		timeout    time.Duration
		statusOnly bool
	)
	fields := fieldFlags{}

	flag.StringVar(&courseID, "course", "", "Course ID to enroll in")
	flag.StringVar(&method, "method", "", "Payment method: jazzcash, easypaisa, card or bank")
	flag.StringVar(&proofPath, "proof", "", "Path to the proof of payment image")
	flag.StringVar(&name, "name", "", "Contact name (defaults to the token identity)")
	flag.StringVar(&email, "email", "", "Contact email (defaults to the token identity)")
	flag.StringVar(&phone, "phone", "", "Contact phone (defaults to the token identity)")
	flag.StringVar(&baseURL, "base", "", "API base URL (overrides ENROLL_API_BASE_URL)")
	flag.StringVar(&token, "token", "", "Bearer token (overrides ENROLL_API_TOKEN)")
	flag.DurationVar(&timeout, "timeout", 0, "HTTP client timeout (overrides ENROLL_API_TIMEOUT)")
	flag.BoolVar(&statusOnly, "status", false, "Only show the enrollment status for the course")
	flag.Var(fields, "field", "Payment field as key=value, repeatable")
	flag.Parse()

	if courseID == "" {
		log.Fatal("-course is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.Build(cfg.Env, cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}

	if baseURL == "" {
		baseURL = cfg.Client.BaseURL
	}
	if token == "" {
		token = cfg.Client.Token
	}
	if timeout <= 0 {
		timeout = cfg.Client.Timeout
	}

	code := run(context.Background(), runOptions{
		client:     enrollclient.New(baseURL, token, timeout),
		payments:   cfg.Payments,
		logger:     logr,
		courseID:   courseID,
		method:     models.PaymentMethod(strings.ToLower(method)),
		proofPath:  proofPath,
		name:       name,
		email:      email,
		phone:      phone,
		fields:     fields,
		statusOnly: statusOnly,
	})
	_ = logr.Sync()
	os.Exit(code)
}

type runOptions struct {
	client     *enrollclient.Client
	payments   config.PaymentsConfig
	logger     *zap.Logger
	courseID   string
	method     models.PaymentMethod
	proofPath  string
	name       string
	email      string
	phone      string
	fields     map[string]string
	statusOnly bool
}

func run(ctx context.Context, opts runOptions) int {
	form := enrollflow.NewForm(opts.client, enrollflow.NewPaymentMethodSelector(opts.payments), printNavigator{}, opts.logger)

	course, err := opts.client.GetCourse(ctx, opts.courseID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "course %s: %v\n", opts.courseID, err)
		return 1
	}
	fmt.Printf("%s by %s, %s %.2f\n", course.Title, course.Instructor, course.Currency, course.Price)
	_ = form.SetCourse(ctx, course)

	var remote *enrollclient.RemoteError
	identity, err := opts.client.Me(ctx)
	switch {
	case err == nil:
		if perr := form.SetIdentity(ctx, identity); perr != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", perr)
		}
	case errors.As(err, &remote) && remote.Status == http.StatusUnauthorized:
		fmt.Fprintln(os.Stderr, "not logged in")
	default:
		fmt.Fprintf(os.Stderr, "identity: %v\n", err)
		return 1
	}

	printView(form.View())
	if opts.statusOnly {
		return 0
	}

	form.SetContact(opts.name, opts.email, opts.phone)
	form.SelectMethod(opts.method)
	for k, v := range opts.fields {
		form.SetField(k, v)
	}
	if instructions := form.Instructions(); instructions != "" {
		fmt.Println(instructions)
	}

	if opts.proofPath != "" {
		if err := stageProof(form, opts.proofPath); err != nil {
			fmt.Fprintf(os.Stderr, "proof: %v\n", err)
			return 1
		}
	}

	outcome, err := form.Submit(ctx)
	if err != nil {
		var input *enrollflow.UserInputError
		if errors.As(err, &input) {
			fmt.Fprintf(os.Stderr, "cannot submit: %v\n", input)
		} else {
			fmt.Fprintf(os.Stderr, "cannot submit: %v\n", err)
		}
		return 1
	}

	fmt.Printf("outcome: %s\n", outcome.Kind)
	if outcome.Message != "" {
		fmt.Println(outcome.Message)
	}
	printView(outcome.View)
	if outcome.Kind == enrollflow.OutcomeFailed {
		return 1
	}
	return 0
}

func stageProof(form *enrollflow.Form, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	mediaType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mediaType == "" {
		mediaType = http.DetectContentType(content)
	}
	if err := form.Proof().Stage(filepath.Base(path), mediaType, content); err != nil {
		return err
	}
	form.Proof().WaitPreview()
	if preview, ok := form.Proof().Preview(); ok {
		fmt.Printf("proof staged: %s (%dx%d)\n", filepath.Base(path), preview.Width, preview.Height)
	}
	return nil
}

func printView(view enrollflow.View) {
	fmt.Printf("status: %s, submit enabled: %t\n", view.Status, view.SubmitEnabled)
	if view.Message != "" {
		fmt.Println(view.Message)
	}
}
