// Package web exposes the duplicate-check HTTP surface described by the
// external interface: two multipart upload endpoints backed by the
// SimHash and winnowing query pipelines.
package web

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"golang.org/x/time/rate"

	"github.com/codematch/codematch/internal/index"
	"github.com/codematch/codematch/internal/memory"
	"github.com/codematch/codematch/internal/query"
)

const decodeErrorMessage = "文件编码格式错误，请上传 UTF-8 文本文件"

// Server is the codematch HTTP surface.
type Server struct {
	app    *fiber.App
	store  index.Store
	orders query.OrderLookup

	limiter *rate.Limiter

	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan []byte
}

// NewServer builds a Server backed by store and orders. requestsPerSec <= 0
// disables rate limiting.
func NewServer(store index.Store, orders query.OrderLookup, requestsPerSec int) *Server {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	s := &Server{
		app:       app,
		store:     store,
		orders:    orders,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 100),
	}
	if requestsPerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(requestsPerSec), requestsPerSec)
	}

	s.setupRoutes()
	go s.handleBroadcast()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Use(cors.New())
	s.app.Use(s.rateLimit)

	api := s.app.Group("/api")
	api.Post("/duplicate-check", s.handleSimHashCheck)
	api.Post("/duplicate-check-v2", s.handleWinnowCheck)

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.handleWebSocket))
}

func (s *Server) rateLimit(c *fiber.Ctx) error {
	if s.limiter == nil || s.limiter.Allow() {
		return c.Next()
	}
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
}

// handleSimHashCheck implements POST /api/duplicate-check.
func (s *Server) handleSimHashCheck(c *fiber.Ctx) error {
	filename, body, err := readUploadedFile(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	code, err := query.DecodeUpload(body)
	if err != nil {
		return c.JSON(fiber.Map{"error": decodeErrorMessage})
	}

	excludeIDs := parseExcludeOrderIDs(c.Query("exclude_order_ids"))

	report, err := query.RunSimHash(c.Context(), s.store, s.orders, code, excludeIDs)
	if err != nil {
		return respondQueryError(c, err)
	}

	details := make([]fiber.Map, 0, len(report.Details))
	for _, d := range report.Details {
		details = append(details, fiber.Map{
			"input_lines":      d.InputLines,
			"match_lines":      d.MatchLines,
			"match_order_id":   d.MatchOrderID,
			"match_project":    d.MatchProject,
			"similarity_score": d.SimilarityScore,
		})
	}

	s.broadcastStatus("duplicate-check", filename, report.DuplicateRate)

	return c.JSON(fiber.Map{
		"filename":       filename,
		"total_lines":    report.TotalLines,
		"duplicate_rate": formatPercent(report.DuplicateRate),
		"process_time":   fmt.Sprintf("%.2fs", report.ProcessSeconds),
		"details":        details,
	})
}

// handleWinnowCheck implements POST /api/duplicate-check-v2.
func (s *Server) handleWinnowCheck(c *fiber.Ctx) error {
	filename, body, err := readUploadedFile(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	code, err := query.DecodeUpload(body)
	if err != nil {
		return c.JSON(fiber.Map{"error": decodeErrorMessage})
	}

	topN := query.TopN
	if v := c.Query("top_n"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			topN = n
		}
	}
	excludeIDs := parseExcludeOrderIDs(c.Query("exclude_order_ids"))

	report, err := query.RunWinnow(c.Context(), s.store, s.orders, code, excludeIDs, topN)
	if err != nil {
		return respondQueryError(c, err)
	}

	details := make([]fiber.Map, 0, len(report.Details))
	for _, d := range report.Details {
		evidence := make([]fiber.Map, 0, len(d.Evidence))
		for _, e := range d.Evidence {
			evidence = append(evidence, fiber.Map{
				"input_lines": e.InputLines,
				"match_lines": e.MatchLines,
			})
		}
		details = append(details, fiber.Map{
			"match_order_id":   d.MatchOrderID,
			"match_project":    d.MatchProject,
			"hit_fingerprints": d.HitFingerprints,
			"coverage":         formatPercent(d.Coverage),
			"evidence":         evidence,
		})
	}

	s.broadcastStatus("duplicate-check-v2", filename, report.DuplicateRate)

	return c.JSON(fiber.Map{
		"filename":       filename,
		"total_lines":    report.TotalLines,
		"duplicate_rate": formatPercent(report.DuplicateRate),
		"details":        details,
	})
}

// readUploadedFile reads the multipart "file" field in bounded chunks
// rather than buffering the whole upload in one allocation.
func readUploadedFile(c *fiber.Ctx) (filename string, body []byte, err error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return "", nil, fmt.Errorf("missing file field: %w", err)
	}

	f, err := fh.Open()
	if err != nil {
		return "", nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	reader := memory.NewChunkedReader(f, memory.DefaultStreamConfig())
	var buf strings.Builder
	for {
		chunk, readErr := reader.ReadChunk()
		buf.Write(chunk)
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", nil, fmt.Errorf("read upload: %w", readErr)
		}
	}

	return fh.Filename, []byte(buf.String()), nil
}

func parseExcludeOrderIDs(raw string) []int64 {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if id, err := strconv.ParseInt(p, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func formatPercent(rate float64) string {
	return fmt.Sprintf("%.2f%%", rate*100)
}

// respondQueryError maps a query pipeline error to an HTTP response per the
// error taxonomy: decode errors are handled earlier, so only
// IndexUnavailable and unclassified internal errors reach here.
func respondQueryError(c *fiber.Ctx, err error) error {
	var qerr *query.Error
	if as, ok := err.(*query.Error); ok {
		qerr = as
	}
	if qerr != nil && qerr.Kind == query.KindIndexUnavailable {
		log.Printf("index unavailable: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "duplicate index is temporarily unavailable"})
	}
	log.Printf("internal query error: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

func (s *Server) handleWebSocket(c *websocket.Conn) {
	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c)
		s.clientsMu.Unlock()
		c.Close()
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) handleBroadcast() {
	for msg := range s.broadcast {
		s.clientsMu.Lock()
		for client := range s.clients {
			if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
				client.Close()
				delete(s.clients, client)
			}
		}
		s.clientsMu.Unlock()
	}
}

// broadcastStatus pushes a best-effort status line to connected dashboard
// clients; it never blocks request handling.
func (s *Server) broadcastStatus(endpoint, filename string, duplicateRate float64) {
	msg := fmt.Sprintf(`{"endpoint":%q,"filename":%q,"duplicate_rate":%q,"at":%q}`,
		endpoint, filename, formatPercent(duplicateRate), time.Now().UTC().Format(time.RFC3339))
	select {
	case s.broadcast <- []byte(msg):
	default:
	}
}

// Start runs the HTTP server until it is stopped or the context is
// cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	go func() {
		<-ctx.Done()
		_ = s.app.Shutdown()
	}()
	log.Printf("codematch server listening on %s", addr)
	return s.app.Listen(addr)
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	return s.app.Shutdown()
}
