// Package core contains canonical fulfillment domain contracts, configuration,
// and the purchase fulfillment orchestration. Adapters (transport, mail,
// licensing clients, stores) must depend on this package; core must not depend
// on provider-specific or transport-specific adapters.
package core
