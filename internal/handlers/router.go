package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"booklending/internal/auth"
	"booklending/internal/services"
)

const identityKey = "identity"

// Services bundles everything the HTTP layer calls into.
type Services struct {
	Auth    services.AuthService
	Loans   services.LoanService
	Books   services.BookService
	Members services.MemberService
}

// Options tunes the cross-cutting middleware.
type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

type LibraryHandler struct {
	svc Services
}

func RegisterRoutes(r *gin.Engine, svc Services, opts Options) {
	h := &LibraryHandler{svc: svc}

	r.Use(cors(opts.AllowedOrigins))
	if opts.RequestTimeout > 0 {
		r.Use(requestTimeout(opts.RequestTimeout))
	}

	// Public endpoints
	r.GET("/health", h.health)
	r.POST("/auth/login", h.login)
	r.POST("/auth/register", h.registerStudent)
	r.POST("/students", h.registerStudent)

	authed := r.Group("/", h.requireAuth)

	authed.POST("/auth/logout", h.logout)

	// Loans
	authed.GET("/loans", h.listLoans)
	authed.POST("/loans", h.borrowBook)
	authed.GET("/loans/:id", h.getLoan)
	authed.PUT("/loans/:id", h.updateLoan)
	authed.PATCH("/loans/:id", h.updateLoan)
	authed.DELETE("/loans/:id", h.deleteLoan)
	authed.POST("/loans/:id/return_book", h.returnBook)

	// Books
	authed.GET("/books", h.listBooks)
	authed.POST("/books", h.createBook)
	authed.GET("/books/:id", h.getBook)
	authed.PUT("/books/:id", h.replaceBook)
	authed.PATCH("/books/:id", h.patchBook)
	authed.DELETE("/books/:id", h.deleteBook)

	// Students (admin)
	authed.GET("/students", h.listStudents)
	authed.GET("/students/:id", h.getStudent)
	authed.PUT("/students/:id", h.updateStudent)
	authed.PATCH("/students/:id", h.updateStudent)
	authed.DELETE("/students/:id", h.deleteStudent)

	// Librarians (admin)
	authed.GET("/librarians", h.listLibrarians)
	authed.POST("/librarians", h.createLibrarian)
	authed.GET("/librarians/:id", h.getLibrarian)
	authed.PUT("/librarians/:id", h.updateLibrarian)
	authed.PATCH("/librarians/:id", h.updateLibrarian)
	authed.DELETE("/librarians/:id", h.deleteLibrarian)
}

func (h *LibraryHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requireAuth resolves "Authorization: Bearer <token>" (or "Token <token>")
// to an identity and stores it on the context.
func (h *LibraryHandler) requireAuth(c *gin.Context) {
	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		writeError(c, services.ErrUnauthenticated)
		return
	}
	who, err := h.svc.Auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set(identityKey, who)
	c.Next()
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok {
		return ""
	}
	if !strings.EqualFold(scheme, "Bearer") && !strings.EqualFold(scheme, "Token") {
		return ""
	}
	return strings.TrimSpace(token)
}

func identity(c *gin.Context) auth.Identity {
	v, _ := c.Get(identityKey)
	who, _ := v.(auth.Identity)
	return who
}

func requestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// cors answers preflight requests and echoes allowed origins. "*" allows any.
func cors(allowed []string) gin.HandlerFunc {
	allowAll := false
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if _, ok := set[origin]; ok || allowAll {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
