package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/linesmerrill/case-portal-api/api"
	"github.com/linesmerrill/case-portal-api/authority"
	"github.com/linesmerrill/case-portal-api/config"
	"github.com/linesmerrill/case-portal-api/databases"
	"github.com/linesmerrill/case-portal-api/databases/memdb"
	"github.com/linesmerrill/case-portal-api/models"
	"github.com/linesmerrill/case-portal-api/notify"
	"github.com/linesmerrill/case-portal-api/payments"
	"github.com/linesmerrill/case-portal-api/pursuit"
	"github.com/linesmerrill/case-portal-api/workflow"
)

// pursuit scores are checked for monotonicity over this many days at startup
const pursuitCheckDays = 3650

const eventDedupeWindow = 10 * time.Minute

// Services are the collaborators the routes are built on
type Services struct {
	Auth       *api.Auth
	Authority  *authority.Authority
	Lifecycle  *workflow.CaseLifecycle
	Consensus  *workflow.InterrogationConsensus
	Settlement *workflow.VerdictSettlement
	Board      *workflow.PursuitBoard
	Users      UserStore
	Hub        *notify.Hub
	Metrics    *api.Metrics

	// Stripe is optional; the webhook route is only mounted when it is set
	Stripe http.Handler

	RequestTimeout time.Duration
}

// App stores the router and its collaborators, so it can be reused
type App struct {
	Router *mux.Router
	Config config.Config

	closers []func(context.Context) error
}

// NewRouter creates a new mux router and all the routes
func NewRouter(s Services) *mux.Router {
	cs := Case{Lifecycle: s.Lifecycle}
	in := Interrogation{Consensus: s.Consensus}
	v := Verdict{Settlement: s.Settlement, Authority: s.Authority}
	mw := MostWanted{Board: s.Board}
	u := User{DB: s.Users}
	ev := Events{Hub: s.Hub}

	r := mux.NewRouter()
	r.Use(s.Metrics.Middleware)

	// healthchex
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")
	r.Handle("/metrics", s.Metrics.Handler()).Methods("GET")

	open := r.PathPrefix("/api/v1").Subrouter()
	open.Use(api.TimeoutMiddleware(s.RequestTimeout))
	open.HandleFunc("/auth/token", s.Auth.IssueToken).Methods("POST")
	open.HandleFunc("/users", u.UserCreateHandler).Methods("POST")
	if s.Stripe != nil {
		open.Handle("/payments/stripe/webhook", s.Stripe).Methods("POST")
	}

	apiCreate := r.PathPrefix("/api/v1").Subrouter()
	apiCreate.Use(s.Auth.Middleware, api.TimeoutMiddleware(s.RequestTimeout))

	apiCreate.HandleFunc("/users/me", u.CurrentUserHandler).Methods("GET")

	apiCreate.HandleFunc("/cases/complaints", cs.FileComplaintHandler).Methods("POST")
	apiCreate.HandleFunc("/cases/scene-reports", cs.FileSceneReportHandler).Methods("POST")
	apiCreate.HandleFunc("/cases", cs.CaseHandler).Methods("GET")
	apiCreate.HandleFunc("/cases/{case_id}", cs.CaseByIDHandler).Methods("GET")
	apiCreate.HandleFunc("/cases/{case_id}/trainee-review", cs.TraineeReviewHandler).Methods("POST")
	apiCreate.HandleFunc("/cases/{case_id}/officer-review", cs.OfficerReviewHandler).Methods("POST")
	apiCreate.HandleFunc("/cases/{case_id}/submit-resolution", cs.SubmitResolutionHandler).Methods("POST")
	apiCreate.HandleFunc("/cases/{case_id}/sergeant-review", cs.SergeantReviewHandler).Methods("POST")
	apiCreate.HandleFunc("/cases/{case_id}/chief-review", cs.ChiefReviewHandler).Methods("POST")
	apiCreate.HandleFunc("/cases/{case_id}/resubmit", cs.ResubmitHandler).Methods("POST")
	apiCreate.HandleFunc("/cases/{case_id}/complainants", cs.AddComplainantHandler).Methods("POST")
	apiCreate.HandleFunc("/cases/{case_id}/suspects", cs.AddSuspectHandler).Methods("POST")

	apiCreate.HandleFunc("/suspects/{suspect_id}/arrest", cs.ArrestSuspectHandler).Methods("POST")
	apiCreate.HandleFunc("/suspects/{suspect_id}/board", cs.SuspectBoardHandler).Methods("PUT")
	apiCreate.HandleFunc("/suspects/{suspect_id}/interrogations", in.CreateInterrogationHandler).Methods("POST")

	apiCreate.HandleFunc("/interrogations/{interrogation_id}", in.InterrogationByIDHandler).Methods("GET")
	apiCreate.HandleFunc("/interrogations/{interrogation_id}/interrogator-score", in.InterrogatorScoreHandler).Methods("PUT")
	apiCreate.HandleFunc("/interrogations/{interrogation_id}/interrogator-score/confirm", in.ConfirmInterrogatorScoreHandler).Methods("POST")
	apiCreate.HandleFunc("/interrogations/{interrogation_id}/supervisor-score", in.SupervisorScoreHandler).Methods("PUT")
	apiCreate.HandleFunc("/interrogations/{interrogation_id}/supervisor-score/confirm", in.ConfirmSupervisorScoreHandler).Methods("POST")
	apiCreate.HandleFunc("/interrogations/{interrogation_id}/feedback", in.FeedbackHandler).Methods("POST")
	apiCreate.HandleFunc("/interrogations/{interrogation_id}/chief-confirmation", in.ChiefConfirmationHandler).Methods("POST")

	apiCreate.HandleFunc("/verdicts", v.CreateVerdictHandler).Methods("POST")
	apiCreate.HandleFunc("/verdicts/{verdict_id}", v.VerdictByIDHandler).Methods("GET")
	apiCreate.HandleFunc("/verdicts/{verdict_id}/bail-fine", v.BailFineHandler).Methods("PUT")
	apiCreate.HandleFunc("/verdicts/{verdict_id}/payment-result", v.PaymentResultHandler).Methods("POST")

	apiCreate.HandleFunc("/most-wanted", mw.FetchMostWantedHandler).Methods("GET")
	apiCreate.HandleFunc("/ws/events", ev.EventsWebSocketHandler).Methods("GET")

	return r
}

// stores groups the persistence the services run on
type stores struct {
	cases          workflow.CaseStore
	suspects       workflow.SuspectStore
	interrogations workflow.InterrogationStore
	verdicts       workflow.VerdictStore
	users          UserStore
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {
	if a.Config.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	st, err := a.openStores()
	if err != nil {
		return err
	}

	matrix, err := authority.LoadMatrix(a.Config.PolicyFile)
	if err != nil {
		zap.S().Errorw("failed to load role matrix", "policyFile", a.Config.PolicyFile, "error", err)
		return err
	}
	pursuitPolicy := pursuit.DefaultPolicy()
	if err := pursuit.CheckMonotonic(pursuitPolicy, pursuitCheckDays); err != nil {
		return fmt.Errorf("pursuit policy: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := api.NewMetrics(reg)
	if err != nil {
		return err
	}

	hub := notify.NewHub()
	notifier, err := a.notifier(reg, hub, st.users)
	if err != nil {
		return err
	}

	deps := &workflow.Deps{
		Authority:      authority.New(matrix),
		Cases:          st.cases,
		Suspects:       st.suspects,
		Interrogations: st.interrogations,
		Verdicts:       st.verdicts,
		Notifier:       notifier,
	}
	s := Services{
		Auth:           api.NewAuth(st.users, a.Config.JWTSecret),
		Authority:      deps.Authority,
		Lifecycle:      workflow.NewCaseLifecycle(deps, workflow.ResolutionPolicy{RequireSuspects: a.Config.RequireSuspects}),
		Consensus:      workflow.NewInterrogationConsensus(deps),
		Settlement:     workflow.NewVerdictSettlement(deps),
		Board:          workflow.NewPursuitBoard(deps, pursuitPolicy),
		Users:          st.users,
		Hub:            hub,
		Metrics:        metrics,
		RequestTimeout: a.Config.RequestTimeout,
	}
	if a.Config.StripeWebhookSecret != "" {
		s.Stripe = payments.NewStripeWebhook(a.Config.StripeWebhookSecret, s.Settlement)
	} else {
		zap.S().Warn("STRIPE_WEBHOOK_SECRET not set, stripe webhook disabled")
	}

	a.Router = NewRouter(s)
	return nil
}

func (a *App) openStores() (stores, error) {
	if a.Config.URL == config.MemoryURL {
		zap.S().Warn("using the in-memory store, data is lost on restart")
		m := memdb.New()
		return stores{cases: m, suspects: m, interrogations: m, verdicts: m, users: m}, nil
	}

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().Errorw("failed to create new client", "error", err)
		return stores{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().Errorw("failed to connect to database", "error", err)
		return stores{}, err
	}
	a.closers = append(a.closers, client.Disconnect)
	zap.S().Info("case-portal-api has connected to the database")

	db := databases.NewDatabase(&a.Config, client)
	return stores{
		cases:          databases.NewCaseDatabase(db),
		suspects:       databases.NewSuspectDatabase(db),
		interrogations: databases.NewInterrogationDatabase(db),
		verdicts:       databases.NewVerdictDatabase(db),
		users:          databases.NewUserDatabase(db),
	}, nil
}

// notifier assembles the event sinks that are configured
func (a *App) notifier(reg prometheus.Registerer, hub *notify.Hub, users UserStore) (workflow.Notifier, error) {
	counter, err := notify.NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	sinks := notify.Fanout{hub, counter}

	if a.Config.RabbitMQURL != "" {
		conn, ch, err := notify.ConnectRabbitMQ(a.Config.RabbitMQURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return conn.Close() })
		pub, err := notify.NewRabbitPublisher(ch, a.Config.EventsQueue)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, pub)
		zap.S().Infow("publishing workflow events", "queue", a.Config.EventsQueue)
	}
	if a.Config.SendGridAPIKey != "" {
		sinks = append(sinks, notify.NewMailer(a.Config.SendGridAPIKey, a.Config.MailFrom, a.Config.BaseURL, users))
	}
	return notify.NewDedupe(sinks, eventDedupeWindow), nil
}

// Close releases the database and broker connections
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			zap.S().Errorw("failed to close connection", "error", err)
		}
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}
