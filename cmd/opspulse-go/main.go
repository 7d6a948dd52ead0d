// Copyright 2024 The opspulse-go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// package main is the entrypoint for the opspulse gateway.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opspulse/opspulse-go/pkg/admin"
	"github.com/opspulse/opspulse-go/pkg/auth"
	"github.com/opspulse/opspulse-go/pkg/config"
	"github.com/opspulse/opspulse-go/pkg/gateway"
	"github.com/opspulse/opspulse-go/pkg/metrics"
	"github.com/opspulse/opspulse-go/pkg/telemetry"
	"github.com/opspulse/opspulse-go/pkg/topic"
	"github.com/opspulse/opspulse-go/pkg/transport"
)

func main() {
	configPath := flag.String("config", os.Getenv("OPSPULSE_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	log.Println("Starting opspulse gateway...")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Credential verifier ---
	var verifier auth.Verifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	} else {
		log.Println("[WARN] No JWT secret configured, using static development tokens")
		mv := auth.NewMemoryVerifier()
		for _, st := range cfg.Auth.StaticTokens {
			if err := mv.AddToken(st.Token, auth.Claims{
				UserID:   st.UserID,
				Username: st.Username,
				Role:     st.Role,
			}); err != nil {
				log.Fatalf("Invalid static token entry: %v", err)
			}
		}
		verifier = mv
	}
	log.Printf("Using %s credential verifier", verifier.Name())

	// --- Topic catalog ---
	catalog := topic.NewCatalog()
	catalog.SetCadence(topic.Logs, cfg.Topics.LogsCadence.Std())
	catalog.SetCadence(topic.Metrics, cfg.Topics.MetricsCadence.Std())
	catalog.SetCadence(topic.Alerts, cfg.Topics.AlertsCadence.Std())
	catalog.SetCadence(topic.Flows, cfg.Topics.FlowsCadence.Std())
	catalog.SetProbability(topic.Alerts, cfg.Topics.AlertProbability)
	catalog.SetProbability(topic.Flows, cfg.Topics.FlowProbability)

	// --- Gateway core ---
	gw := gateway.New(gateway.Options{
		MaxSubscriptionsPerClient: cfg.Gateway.MaxSubscriptionsPerClient,
		AuthTimeout:               cfg.Gateway.AuthTimeout.Std(),
		HeartbeatInterval:         cfg.Gateway.HeartbeatInterval.Std(),
		SendBuffer:                cfg.Gateway.SendBuffer,
	}, verifier, catalog, telemetry.Defaults())
	if err := gw.Start(ctx); err != nil {
		log.Fatalf("Failed to start gateway loops: %v", err)
	}

	// --- Transport and admin surface ---
	server := transport.NewServer(gw, cfg.Server.Addr, cfg.Server.WSPath)
	admin.NewAPIServer(gw).RegisterRoutes(server.Mux())
	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start transport server: %v", err)
	}

	// --- Metrics server ---
	go metrics.Serve(cfg.Server.MetricsAddr)

	// --- Wait for shutdown signal ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received signal %v, shutting down...", sig)

	cancel()
	gw.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Printf("Transport shutdown error: %v", err)
	}
	log.Println("Gateway stopped.")
}
