package collaboard

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/collaboard/collaboard/core"
	"github.com/collaboard/collaboard/pkg/router"
)

type App struct {
	config      *Config
	context     context.Context
	server      *http.Server
	logger      *slog.Logger
	router      *router.Router
	eventRouter *core.EventRouter
	wsManager   *core.ConnManager
	registry    *core.Registry

	// sessions maps a connected user id to the room it currently occupies,
	// so an abrupt connection close can be turned into an implicit leave.
	sessions *core.SyncMap[string, string]

	exit chan int

	cleanupFuncs []func(context.Context)

	wg sync.WaitGroup
}

func New(ctx context.Context, config *Config) *App {
	app := &App{
		exit:     make(chan int),
		sessions: core.NewSyncMap[string, string](),
	}
	if ctx == nil {
		ctx, _ = signal.NotifyContext(
			context.Background(),
			syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	}
	app.context = ctx

	if config == nil {
		var err error
		config, err = LoadConfig()
		if err != nil {
			failed(1, "failed to load config: %v\n", err)
		}
	}
	if err := config.Validate(); err != nil {
		failed(1, FormatValidationErrors(err))
	}
	app.config = config

	app.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				source, _ := a.Value.Any().(*slog.Source)
				if source != nil {
					source.File = filepath.Base(source.File)
				}
			}
			return a
		},
	}))

	app.registry = core.NewRegistry(app.logger,
		core.WithEmptyRoomTTL(app.config.Room.EmptyTTL))
	app.registry.StartJanitor(app.context)

	app.wsManager = core.NewConnManager(app.context, &app.wg, app.logger,
		core.WithCheckOrigin(app.checkOrigin))
	app.wsManager.OnDisconnect(app.onDisconnect)
	app.AddCleanupFunc(func(ctx context.Context) {
		app.wsManager.Close()
	})

	app.eventRouter = core.NewEventRouter(app.context, app.logger, app.wsManager)
	app.eventRouter.On(core.EventRoomJoin, app.RoomJoinHandler)
	app.eventRouter.On(core.EventRoomLeave, app.RoomLeaveHandler)
	app.eventRouter.On(core.EventRoomSync, app.RoomSyncHandler)
	app.eventRouter.On(core.EventDrawCommit, app.DrawCommitHandler)
	app.eventRouter.On(core.EventDrawMove, app.DrawMoveHandler)
	app.eventRouter.On(core.EventActionUndo, app.ActionUndoHandler)
	app.eventRouter.On(core.EventBoardClear, app.BoardClearHandler)
	app.eventRouter.On(core.EventCursorUpdate, app.CursorUpdateHandler)
	app.eventRouter.On(core.EventPageCreate, app.PageCreateHandler)
	app.eventRouter.On(core.EventPageDelete, app.PageDeleteHandler)
	app.eventRouter.Listen()

	app.router = router.New(router.WithLogger(app.logger))

	app.router.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	app.router.Get("/ws", func(w http.ResponseWriter, r *http.Request) error {
		userID := app.identityFromRequest(r)
		return app.wsManager.Connect(userID, w, r)
	})

	app.router.RegisterErrorMapper(core.ErrRoomNotFound, func(err error) router.Error {
		return router.NewJsonError(http.StatusNotFound, err.Error())
	})
	app.router.Route("/api", func(r *router.Router) {
		r.Post("/identity", app.IdentityHandler)
		r.Get("/rooms/{roomID}", app.RoomInfoHandler)
	})

	app.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", app.config.Hostname, app.config.Port),
		Handler: app.router.Router,
		BaseContext: func(listener net.Listener) context.Context {
			return app.context
		},
	}

	return app
}

// Handler exposes the app's HTTP surface, including the websocket upgrade
// endpoint.
func (app *App) Handler() http.Handler {
	return app.router.Router
}

func (app *App) Start() {
	// listen for shutdown signal
	go func() {
		<-app.context.Done()
		close(app.exit)
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		var wg sync.WaitGroup

		for _, f := range app.cleanupFuncs {
			wg.Add(1)
			func(wg *sync.WaitGroup) {
				defer wg.Done()
				f(closeCtx)
			}(&wg)
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			app.logger.Info("app shutdown gracefully")
			app.exit <- 0
		case <-closeCtx.Done():
			app.logger.Info("app shutdown timed out")
			app.exit <- 1
		}
	}()

	app.AddCleanupFunc(func(ctx context.Context) {
		app.server.Shutdown(ctx)
	})
	app.logger.Info(fmt.Sprintf("app running on: %s:%d",
		app.config.Hostname, app.config.Port))

	err := app.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		failed(1, "server error: %v\n", err)
	}

	code := <-app.exit
	if code != 0 {
		failed(code, "app exit with code: %d\n", code)
	} else {
		os.Exit(code)
	}
}

func (app *App) AddCleanupFunc(f func(context.Context)) {
	app.cleanupFuncs = append(app.cleanupFuncs, f)
}

// identityFromRequest resolves the connection's persistent user id from the
// token query parameter. A missing or invalid token gets a throwaway id for
// this connection only; availability is preferred over strictness at the
// door.
func (app *App) identityFromRequest(r *http.Request) string {
	token := r.URL.Query().Get("token")
	if token != "" {
		userID, err := core.VerifyIdentityToken(token, app.config.Auth.Secret)
		if err == nil {
			return userID
		}
		app.logger.Warn(fmt.Sprintf("identity token rejected: %v", err))
	}
	return uuid.NewString()
}

func (app *App) checkOrigin(r *http.Request) bool {
	if slices.Contains(app.config.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(app.config.AllowedOrigins, r.Header.Get("Origin"))
}

func failed(code int, s string, args ...interface{}) {
	fmt.Printf(s, args...)
	os.Exit(code)
}
