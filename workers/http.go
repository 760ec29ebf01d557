package workers

import (
	"context"
	"crypto/tls"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gochainpay/config"
	"gochainpay/workers/handlers"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
)

func Worker_HTTP() {
	log.Printf("Starting HTTP service")

	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Options("/*", CORSHeaders)

	r.Get("/state", handlers.State)
	r.Get("/health", handlers.HealthCheck)

	r.Get("/chains", handlers.Chains)
	r.Get("/balance/{chain}", handlers.Balance)

	r.Post("/payment/new", handlers.NewPayment)
	r.Get("/payment/{id}/status", handlers.PaymentStatus)

	r.Post("/tx/submit", handlers.SubmitTx)

	r.Get("/stats/failed", handlers.GetFailedPayments)

	var server *http.Server

	if config.Config.Server.UseSSL {
		cert, _ := tls.LoadX509KeyPair("certchain.pem", "privatekey.pem")
		server = &http.Server{
			Addr:    ":443",
			Handler: r,
			TLSConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			},
		}
	} else {
		server = &http.Server{
			Addr:    ":8080",
			Handler: r,
		}
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if config.Config.Server.UseSSL {
			if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
				log.Fatalf("error listening to: %s", err)
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("error listening to: %s", err)
			}
		}
	}()
	log.Print("HTTP service started")

	<-done
	log.Print("HTTP service stopped")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer func() {
		cancel()
	}()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP service shutdown error: %+v", err)
	}
	log.Print("HTTP service shutdown normal")

	// send signal to other threads/workers to exit
	WorkerShutdown = true
}

func CORSHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
	w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, Origin, X-Requested-With")
}
