package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"esignd/internal/config"
	"esignd/internal/domain"
	"esignd/internal/infra/auth/statictoken"
	"esignd/internal/infra/crypto"
	"esignd/internal/infra/db"
	"esignd/internal/infra/notify"
	"esignd/internal/infra/otp"
	"esignd/internal/infra/policyopa"
	"esignd/internal/usecase"

	"github.com/gin-gonic/gin"
)

type Server struct {
	cfg   config.Config
	store *db.Store
	r     *gin.Engine

	engine       *usecase.SignatureEngine
	orchestrator *usecase.WorkflowOrchestrator
	verifier     *usecase.DocumentVerifier
	documents    usecase.DocumentStore
	certificates usecase.CertificateRepository
	audit        usecase.AuditRepository

	authenticator domain.Authenticator
	policy        domain.AccessPolicy
}

func NewServer(cfg config.Config, store *db.Store) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, store: store, r: r}
	s.initDeps()
	s.routes()
	return s
}

type ServerDeps struct {
	Engine        *usecase.SignatureEngine
	Orchestrator  *usecase.WorkflowOrchestrator
	Verifier      *usecase.DocumentVerifier
	Documents     usecase.DocumentStore
	Certificates  usecase.CertificateRepository
	Audit         usecase.AuditRepository
	Authenticator domain.Authenticator
	Policy        domain.AccessPolicy
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:           cfg,
		r:             r,
		engine:        deps.Engine,
		orchestrator:  deps.Orchestrator,
		verifier:      deps.Verifier,
		documents:     deps.Documents,
		certificates:  deps.Certificates,
		audit:         deps.Audit,
		authenticator: deps.Authenticator,
		policy:        deps.Policy,
	}
	if s.documents == nil && s.engine != nil {
		s.documents = s.engine.Documents
	}
	if s.certificates == nil && s.engine != nil {
		s.certificates = s.engine.Certificates
	}
	if s.audit == nil && s.engine != nil {
		s.audit = s.engine.Audit
	}
	s.routes()
	return s
}

func (s *Server) initDeps() {
	cryptoSvc := &crypto.Service{}

	var (
		signatureRepo   *db.SignatureRepository
		workflowRepo    *db.WorkflowRepository
		auditRepo       *db.AuditEntryRepository
		certificateRepo *db.CertificateRepository
		documentRepo    *db.DocumentRepository
	)
	if s.store != nil {
		signatureRepo = db.NewSignatureRepository(s.store.DB)
		workflowRepo = db.NewWorkflowRepository(s.store.DB)
		auditRepo = db.NewAuditEntryRepository(s.store.DB)
		certificateRepo = db.NewCertificateRepository(s.store.DB)
		documentRepo = db.NewDocumentRepository(s.store.DB)
	}

	var challenges usecase.ChallengeStore
	if s.cfg.RedisAddr != "" {
		redisStore, err := otp.NewRedisStore(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, nil)
		if err != nil {
			log.Printf("redis challenge store unavailable (%v); using in-memory store", err)
		} else {
			challenges = redisStore
		}
	}
	if challenges == nil {
		challenges = otp.NewMemoryStore(otp.MemoryStoreConfig{})
	}

	var codes usecase.CodeSource = otp.StaticSource{}
	if s.cfg.Production() {
		codes = otp.RandomSource{}
	}

	identity := &usecase.IdentityVerifier{
		Challenges:  challenges,
		Codes:       codes,
		TTL:         s.cfg.ChallengeTTL(),
		MaxAttempts: s.cfg.OTPMaxAttempts,
	}
	notifier := notify.LogGateway{}

	s.engine = &usecase.SignatureEngine{
		Signatures:   signatureRepo,
		Certificates: certificateRepo,
		Audit:        auditRepo,
		Documents:    documentRepo,
		Identity:     identity,
		Notifier:     notifier,
		Crypto:       cryptoSvc,
		Issuer:       s.cfg.CertIssuer,
		VerifyBase:   s.cfg.VerifyBaseURL,
	}
	s.orchestrator = &usecase.WorkflowOrchestrator{
		Workflows:  workflowRepo,
		Signatures: signatureRepo,
		Audit:      auditRepo,
		Documents:  documentRepo,
		Engine:     s.engine,
		Notifier:   notifier,
	}
	s.verifier = &usecase.DocumentVerifier{
		Signatures:   signatureRepo,
		Certificates: certificateRepo,
		Audit:        auditRepo,
		Crypto:       cryptoSvc,
	}
	s.documents = documentRepo
	s.certificates = certificateRepo
	s.audit = auditRepo

	if s.cfg.AuthMode == "token" {
		s.authenticator = statictoken.New(s.cfg.APITokens)
	}

	ctx := context.Background()
	var (
		policy *policyopa.Engine
		err    error
	)
	if s.cfg.PolicyBundlePath != "" {
		policy, err = policyopa.NewEngineFromBundlePath(ctx, s.cfg.PolicyBundlePath)
	} else {
		policy, err = policyopa.NewEngine(ctx)
	}
	if err != nil {
		log.Printf("policy engine unavailable: %v", err)
	} else {
		s.policy = policy
	}
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		dbMode := "no-db"
		if s.store != nil && s.store.DB != nil {
			dbMode = "db"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": dbMode})
	})

	v1 := s.r.Group("/v1")
	{
		v1.POST("/signatures", s.handleInitiateSignature)
		v1.POST("/signatures/bulk", s.handleBulkInitiate)
		v1.POST("/signatures/:id/otp", s.handleVerifyOTP)
		v1.POST("/signatures/:id/apply", s.handleApplySignature)
		v1.GET("/signatures/:id", s.handleSignatureStatus)
		v1.GET("/signatures/:id/document", s.handleDownloadDocument)
		v1.GET("/signatures/:id/certificate", s.handleSignatureCertificate)
		v1.GET("/signatures/:id/audit", s.handleSignatureAudit)
		v1.GET("/documents/:id/signatures", s.handleDocumentSignatures)

		v1.POST("/workflows", s.handleCreateWorkflow)
		v1.GET("/workflows/:id", s.handleWorkflowStatus)
		v1.POST("/workflows/:id/signatories", s.handleAddSignatory)
		v1.DELETE("/workflows/:id/signatories/:sid", s.handleRemoveSignatory)
		v1.POST("/workflows/:id/signatories/:sid/request", s.handleRequestSignature)
		v1.POST("/workflows/:id/reminders", s.handleSendReminders)

		v1.POST("/verify", s.handleVerifyDocument)
		v1.GET("/certificates/:certificate_id", s.handleCertificateLookup)
	}

	s.r.NoRoute(s.handleNoRoute)
}

func (s *Server) Run() error {
	return s.r.Run(s.cfg.HTTPAddr)
}

// RunExpirySweep ticks the timeout sweep until ctx is done.
func (s *Server) RunExpirySweep(ctx context.Context) {
	interval := s.cfg.SweepInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.engine.ExpireDue(ctx)
			if err != nil {
				log.Printf("expiry sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("expiry sweep: expired %d signatures", n)
			}
		}
	}
}
