package main

import (
	"context"

	"github.com/gorilla/mux"
	"github.com/volcengine/veadk-go/apps"
	"github.com/volcengine/veadk-go/apps/a2a_app"
	"google.golang.org/adk/agent"

	"github.com/zhengjr9/claude-gateway/internal/proxy"
)

// loggedApp wraps the A2A server app so its router logs requests the same
// way the gateway does.
type loggedApp struct {
	apps.BasicApp
}

func newA2AApp(port int) *loggedApp {
	return &loggedApp{BasicApp: a2a_app.NewAgentkitA2AServerApp(
		apps.DefaultApiConfig().SetPort(port),
	)}
}

func newRunConfig(a agent.Agent) *apps.RunConfig {
	return &apps.RunConfig{AgentLoader: agent.NewSingleLoader(a)}
}

// Run passes the wrapper, not the embedded app, to apps.Run so that the
// SetupRouters override below is the one invoked.
func (a *loggedApp) Run(ctx context.Context, config *apps.RunConfig) error {
	return apps.Run(ctx, config, a)
}

func (a *loggedApp) SetupRouters(router *mux.Router, config *apps.RunConfig) error {
	if err := a.BasicApp.SetupRouters(router, config); err != nil {
		return err
	}
	router.Use(proxy.LoggingMiddleware)
	return nil
}
