// Package di contains dependency injection tokens for the chainsync context.
package di

import (
	"github.com/fd1az/socialpay-sync/business/chainsync/app"
	"github.com/fd1az/socialpay-sync/business/chainsync/infra/httpapi"
	"github.com/fd1az/socialpay-sync/internal/di"
)

// Public service tokens - exposed to other modules
var (
	ChainStateService = di.NewToken[*app.ChainStateService]("chainsync.ChainStateService")
	Broadcaster       = di.NewToken[*app.Broadcaster]("chainsync.Broadcaster")
	Scheduler         = di.NewToken[*app.Scheduler]("chainsync.Scheduler")
)

// Private dependency tokens - internal to chainsync module
var (
	Provider   = di.NewToken[app.ChainInfoProvider]("chainsync:provider")
	Store      = di.NewToken[app.StateStore]("chainsync:store")
	Reconciler = di.NewToken[*app.Reconciler]("chainsync:reconciler")
	Handler    = di.NewToken[*httpapi.Handler]("chainsync:httpHandler")
)

func GetChainStateService(c di.ServiceRegistry) *app.ChainStateService {
	return di.GetToken(c, ChainStateService)
}

func GetBroadcaster(c di.ServiceRegistry) *app.Broadcaster {
	return di.GetToken(c, Broadcaster)
}

func GetScheduler(c di.ServiceRegistry) *app.Scheduler {
	return di.GetToken(c, Scheduler)
}

func GetProvider(c di.ServiceRegistry) app.ChainInfoProvider {
	return di.GetToken(c, Provider)
}

func GetStore(c di.ServiceRegistry) app.StateStore {
	return di.GetToken(c, Store)
}

func GetReconciler(c di.ServiceRegistry) *app.Reconciler {
	return di.GetToken(c, Reconciler)
}

func GetHandler(c di.ServiceRegistry) *httpapi.Handler {
	return di.GetToken(c, Handler)
}
