package main

import (
	"net/http"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"
)

func (app *application) routes() http.Handler {
	standardMiddleware := alice.New(app.recoverPanic, app.logRequest, secureHeaders, makeResponseJSON)
	authMiddleware := standardMiddleware.Append(app.jwtMiddleware)

	mux := pat.New()

	// Invoices
	mux.Post("/invoices", authMiddleware.ThenFunc(app.invoiceHandler.CreateInvoice))
	mux.Get("/invoices", authMiddleware.ThenFunc(app.invoiceHandler.GetInvoices))
	mux.Get("/invoices/:id", authMiddleware.ThenFunc(app.invoiceHandler.GetInvoiceByID))
	mux.Post("/invoices/:id/send", authMiddleware.ThenFunc(app.invoiceHandler.SendInvoice))
	mux.Post("/invoices/:id/cancel", authMiddleware.ThenFunc(app.invoiceHandler.CancelInvoice))
	mux.Post("/invoices/:id/checkout", authMiddleware.ThenFunc(app.invoiceHandler.CreateCheckout))

	// Wallets
	mux.Post("/wallets/address", authMiddleware.ThenFunc(app.chainHandler.GenerateWalletAddress))

	// Dashboard
	mux.Get("/stats/overview", authMiddleware.ThenFunc(app.statsHandler.GetOverview))
	mux.Get("/stats/tax_reserve", authMiddleware.ThenFunc(app.statsHandler.GetTaxReserve))
	mux.Get("/export/csv", authMiddleware.ThenFunc(app.exportHandler.ExportCSV))

	// External ingress. Authenticated by signature, not by JWT.
	mux.Post("/webhooks/payments/:provider", standardMiddleware.ThenFunc(app.webhookHandler.HandleProviderWebhook))
	mux.Post("/webhooks/chain", standardMiddleware.ThenFunc(app.chainHandler.HandleActivity))

	// Payer-facing, addressed by payment token only.
	mux.Get("/pay/:token/status", standardMiddleware.ThenFunc(app.statusHandler.GetPaymentStatus))
	mux.Get("/pay/:token/ws", http.HandlerFunc(app.statusWS))

	return addSecurityHeaders(mux)
}
