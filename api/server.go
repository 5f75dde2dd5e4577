package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"citnet/config"
	"citnet/models"
	"citnet/services"
	"citnet/storage"
)

// ErrBusy is returned when another job holds the runner.
var ErrBusy = errors.New("another job is running")

// Server stellt die HTTP-API und den Scheduler bereit.
// All writing jobs share one runner so the store never sees concurrent writers.
type Server struct {
	Config    *config.Config
	Store     *storage.Store
	Sampler   *services.Sampler
	Generator *services.EdgeGenerator
	Clusters  *services.ClusterAssigner
	Logger    *zap.Logger
	Gatherer  prometheus.Gatherer

	runner sync.Mutex
	jobs   sync.WaitGroup
	// ctx is the parent of every background job and is cancelled by Stop.
	ctx    context.Context
	cancel context.CancelFunc
	cron   *cron.Cron
}

// NewServer erstellt einen neuen API-Server.
func NewServer(cfg *config.Config, store *storage.Store, sampler *services.Sampler, gen *services.EdgeGenerator, clusters *services.ClusterAssigner, logger *zap.Logger, gatherer prometheus.Gatherer) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		ctx:       ctx,
		cancel:    cancel,
		Config:    cfg,
		Store:     store,
		Sampler:   sampler,
		Generator: gen,
		Clusters:  clusters,
		Logger:    logger,
		Gatherer:  gatherer,
	}
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

// Router builds the gin engine with every route.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if s.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})))
	}
	router.Use(apiKeyAuthMiddleware(s.Config))

	s.setupNodeRoutes(router)
	s.setupEdgeRoutes(router)
	s.setupJobRoutes(router)
	return router
}

func (s *Server) setupNodeRoutes(router *gin.Engine) {
	router.GET("/nodes", func(c *gin.Context) {
		limit := queryInt(c, "limit", 100)
		offset := queryInt(c, "offset", 0)
		nodes, err := s.Store.Nodes(c.Request.Context(), limit, offset)
		if err != nil {
			s.Logger.Error("Knoten konnten nicht geladen werden", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, nodes)
	})

	router.GET("/nodes/:id", func(c *gin.Context) {
		node, err := s.Store.Node(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "node not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, node)
	})

	router.GET("/stats", func(c *gin.Context) {
		st, err := s.Store.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, st)
	})

	router.GET("/runs", func(c *gin.Context) {
		runs, err := s.Store.Runs(c.Request.Context(), queryInt(c, "limit", 20))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, runs)
	})
}

func (s *Server) setupEdgeRoutes(router *gin.Engine) {
	router.GET("/edges/:relation", func(c *gin.Context) {
		relation, err := models.ParseRelationType(c.Param("relation"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		edges, err := s.Store.RelationEdges(c.Request.Context(), relation)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, edges)
	})
}

func (s *Server) setupJobRoutes(router *gin.Engine) {
	router.POST("/expand/:direction", func(c *gin.Context) {
		direction, err := models.ParseDirection(c.Param("direction"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !s.runner.TryLock() {
			c.JSON(http.StatusConflict, gin.H{"error": ErrBusy.Error()})
			return
		}
		s.jobs.Add(1)
		go func() {
			defer s.jobs.Done()
			defer s.runner.Unlock()
			if _, err := s.Sampler.Expand(s.ctx, direction); err != nil {
				s.Logger.Error("Expansion fehlgeschlagen", zap.String("direction", string(direction)), zap.Error(err))
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": fmt.Sprintf("Expansion along %s triggered.", direction)})
	})

	router.POST("/generate/:relation", func(c *gin.Context) {
		relation, err := models.ParseRelationType(c.Param("relation"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.runJob(c, func(ctx context.Context) (*models.Run, error) {
			return s.Generator.Generate(ctx, relation)
		})
	})

	router.POST("/clusters/:relation", func(c *gin.Context) {
		relation, err := models.ParseRelationType(c.Param("relation"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.runJob(c, func(ctx context.Context) (*models.Run, error) {
			return s.Clusters.AssignClusters(ctx, relation)
		})
	})
}

// runJob runs a synchronous job under the runner lock.
func (s *Server) runJob(c *gin.Context, job func(ctx context.Context) (*models.Run, error)) {
	if !s.runner.TryLock() {
		c.JSON(http.StatusConflict, gin.H{"error": ErrBusy.Error()})
		return
	}
	defer s.runner.Unlock()
	run, err := job(c.Request.Context())
	if err != nil {
		s.Logger.Error("Job fehlgeschlagen", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "run": run})
		return
	}
	c.JSON(http.StatusOK, run)
}

// Wait blocks until background jobs have finished.
func (s *Server) Wait() {
	s.jobs.Wait()
}

// Stop cancels running background and scheduled jobs and waits for them to
// return. Batches already committed stay stored; the rest remain queued.
func (s *Server) Stop() {
	s.cancel()
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.jobs.Wait()
}

// RunScheduled expands along the configured directions and regenerates the
// configured relation. It returns ErrBusy if another job is running.
func (s *Server) RunScheduled(ctx context.Context) error {
	directions, relation, err := s.scheduledJobs()
	if err != nil {
		return err
	}
	if !s.runner.TryLock() {
		return ErrBusy
	}
	defer s.runner.Unlock()

	for _, d := range directions {
		if _, err := s.Sampler.Expand(ctx, d); err != nil {
			return err
		}
	}
	_, err = s.Generator.Generate(ctx, relation)
	return err
}

func (s *Server) scheduledJobs() ([]models.Direction, models.RelationType, error) {
	var directions []models.Direction
	for _, name := range strings.Split(s.Config.CronDirections, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		d, err := models.ParseDirection(name)
		if err != nil {
			return nil, "", err
		}
		directions = append(directions, d)
	}
	relation, err := models.ParseRelationType(s.Config.CronRelation)
	if err != nil {
		return nil, "", err
	}
	return directions, relation, nil
}

// StartScheduler registers RunScheduled with cron. An empty schedule disables it.
func (s *Server) StartScheduler() (*cron.Cron, error) {
	if s.Config.CronSchedule == "" {
		return nil, nil
	}
	if _, _, err := s.scheduledJobs(); err != nil {
		return nil, err
	}
	cronScheduler := cron.New()
	_, err := cronScheduler.AddFunc(s.Config.CronSchedule, func() {
		s.Logger.Info("Starte geplanten Lauf")
		if err := s.RunScheduled(s.ctx); err != nil {
			s.Logger.Error("Geplanter Lauf fehlgeschlagen", zap.Error(err))
			return
		}
		s.Logger.Info("Geplanter Lauf abgeschlossen")
	})
	if err != nil {
		return nil, fmt.Errorf("invalid CRON_SCHEDULE %q: %w", s.Config.CronSchedule, err)
	}
	cronScheduler.Start()
	s.cron = cronScheduler
	return cronScheduler, nil
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
