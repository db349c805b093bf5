// Package client is the leadhooks Go SDK.
//
// # Managing subscriptions
//
// Admin tokens are scoped to one organization:
//
//	c, err := client.New("http://localhost:8080", client.WithBearerToken(adminToken))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	created, err := c.CreateSubscription(ctx, "https://crm.example.com/hooks",
//	    client.EventLeadCreated, client.EventLeadAssigned)
//	// Store created.Secret: it is only returned here.
//
// # Submitting events
//
// Producers use a service token. Dispatch returns once the event is accepted;
// delivery and retries continue in the background:
//
//	err = c.Dispatch(ctx, client.EventLeadCreated, map[string]string{"leadId": "L1"})
//
// # Receiving deliveries
//
// Receivers verify the X-Webhook-Signature header over the raw body before
// decoding it:
//
//	func hook(w http.ResponseWriter, r *http.Request) {
//	    ev, err := client.ParseEvent(r, secret)
//	    if err != nil {
//	        http.Error(w, "bad signature", http.StatusUnauthorized)
//	        return
//	    }
//	    // ev.ID, ev.Type, ev.Timestamp, ev.Data
//	}
//
// Deliveries are at-least-once. Receivers should deduplicate on the
// X-Webhook-Event-Id header.
package client
