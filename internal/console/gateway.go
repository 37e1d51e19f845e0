package console

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MarkoPoloResearchLab/crmconsole/internal/crmapi"
	"github.com/MarkoPoloResearchLab/crmconsole/internal/model"
	"github.com/MarkoPoloResearchLab/crmconsole/internal/querycache"
	"github.com/MarkoPoloResearchLab/crmconsole/internal/storage"
)

const (
	QueryUser           = "user"
	QueryBranding       = "branding-profile"
	QueryModules        = "modules"
	QueryEmailTemplates = "email-templates"

	logEventBrandingUnavailable    = "branding_unavailable"
	logEventBrandingSnapshotFailed = "branding_snapshot_failed"
	logEventModulesUnavailable     = "modules_unavailable"
	logEventCacheInvalidateFailed  = "cache_invalidate_failed"
	logEventLogoutFailed           = "crm_logout_failed"
)

// ErrMissingClient indicates the gateway was built without a CRM client.
var ErrMissingClient = errors.New("console: missing crm client")

// CRMClient is the subset of the CRM API the console calls.
type CRMClient interface {
	BaseURL() string
	CurrentUser(ctx context.Context, token string) (*model.User, error)
	Login(ctx context.Context, credentials crmapi.Credentials) (crmapi.LoginResult, error)
	Logout(ctx context.Context, token string) error
	Branding(ctx context.Context, token string) (*model.Branding, error)
	Modules(ctx context.Context, token string) ([]model.Module, error)
	DashboardStats(ctx context.Context, token string) (*model.DashboardStats, error)
	EmailLog(ctx context.Context, token string, page int) (*model.EmailLogPage, error)
	EmailTemplates(ctx context.Context, token string) ([]model.EmailTemplate, error)
	UpdateEmailTemplate(ctx context.Context, token string, id string, update model.TemplateUpdate) error
	Export(ctx context.Context, token string, request model.ExportRequest) (*crmapi.ExportFile, error)
	Invoices(ctx context.Context, token string) (*model.Collection[model.Invoice], error)
	Customers(ctx context.Context, token string) (*model.Collection[model.Record], error)
	Yachts(ctx context.Context, token string) (*model.Collection[model.Record], error)
	Vehicles(ctx context.Context, token string) (*model.Collection[model.Record], error)
	Parts(ctx context.Context, token string) (*model.Collection[model.Part], error)
}

// BrandingSnapshots persists the last known branding.
type BrandingSnapshots interface {
	Save(ctx context.Context, sourceURL string, branding model.Branding) error
	Load(ctx context.Context, sourceURL string) (model.Branding, time.Time, error)
}

// Config wires a Gateway.
type Config struct {
	Client      CRMClient
	Cache       *querycache.Cache
	Snapshots   BrandingSnapshots
	BrandingTTL time.Duration
	Logger      *zap.Logger
}

// Gateway fronts the CRM API for the console views. Reads of slow-changing
// data go through the response cache; view data is always fetched fresh.
type Gateway struct {
	client      CRMClient
	cache       *querycache.Cache
	snapshots   BrandingSnapshots
	brandingTTL time.Duration
	logger      *zap.Logger
}

// NewGateway validates configuration and constructs a Gateway.
func NewGateway(configuration Config) (*Gateway, error) {
	if configuration.Client == nil {
		return nil, ErrMissingClient
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		client:      configuration.Client,
		cache:       configuration.Cache,
		snapshots:   configuration.Snapshots,
		brandingTTL: configuration.BrandingTTL,
		logger:      logger,
	}, nil
}

func cacheKey(token string, name string) querycache.Key {
	return querycache.Key{Scope: querycache.ScopeForToken(token), Name: name}
}

// CurrentUser resolves the user owning token.
func (gateway *Gateway) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	return querycache.Fetch(ctx, gateway.cache, cacheKey(token, QueryUser), 0, func(ctx context.Context) (*model.User, error) {
		return gateway.client.CurrentUser(ctx, token)
	})
}

// Login exchanges credentials for a CRM token.
func (gateway *Gateway) Login(ctx context.Context, credentials crmapi.Credentials) (crmapi.LoginResult, error) {
	return gateway.client.Login(ctx, credentials)
}

// Logout revokes token at the CRM and drops every cached entry for it. A
// failed revocation is logged and does not keep the caller signed in.
func (gateway *Gateway) Logout(ctx context.Context, token string) {
	if logoutErr := gateway.client.Logout(ctx, token); logoutErr != nil {
		gateway.logger.Warn(logEventLogoutFailed, zap.Error(logoutErr))
	}
	invalidateErr := gateway.cache.Invalidate(ctx,
		cacheKey(token, QueryUser),
		cacheKey(token, QueryBranding),
		cacheKey(token, QueryModules),
		cacheKey(token, QueryEmailTemplates),
	)
	if invalidateErr != nil {
		gateway.logger.Warn(logEventCacheInvalidateFailed, zap.Error(invalidateErr))
	}
}

// Branding returns the live branding profile, falling back to the last stored
// snapshot. It returns nil when neither is available.
func (gateway *Gateway) Branding(ctx context.Context, token string) *model.Branding {
	branding, brandingErr := querycache.Fetch(ctx, gateway.cache, cacheKey(token, QueryBranding), gateway.brandingTTL, func(ctx context.Context) (*model.Branding, error) {
		live, err := gateway.client.Branding(ctx, token)
		if err != nil {
			return nil, err
		}
		gateway.saveSnapshot(ctx, live)
		return live, nil
	})
	if brandingErr == nil && branding != nil {
		return branding
	}
	if brandingErr != nil {
		gateway.logger.Warn(logEventBrandingUnavailable, zap.Error(brandingErr))
	}
	return gateway.loadSnapshot(ctx)
}

func (gateway *Gateway) saveSnapshot(ctx context.Context, branding *model.Branding) {
	if gateway.snapshots == nil || branding == nil {
		return
	}
	if saveErr := gateway.snapshots.Save(ctx, gateway.client.BaseURL(), *branding); saveErr != nil {
		gateway.logger.Warn(logEventBrandingSnapshotFailed, zap.Error(saveErr))
	}
}

func (gateway *Gateway) loadSnapshot(ctx context.Context) *model.Branding {
	if gateway.snapshots == nil {
		return nil
	}
	branding, _, loadErr := gateway.snapshots.Load(ctx, gateway.client.BaseURL())
	if loadErr != nil {
		if !errors.Is(loadErr, storage.ErrSnapshotNotFound) {
			gateway.logger.Warn(logEventBrandingSnapshotFailed, zap.Error(loadErr))
		}
		return nil
	}
	return &branding
}

// AssetLabels resolves asset labels from the module flags. Failures yield the
// neutral defaults with every module disabled.
func (gateway *Gateway) AssetLabels(ctx context.Context, token string) model.AssetLabels {
	modules, modulesErr := querycache.Fetch(ctx, gateway.cache, cacheKey(token, QueryModules), 0, func(ctx context.Context) ([]model.Module, error) {
		return gateway.client.Modules(ctx, token)
	})
	if modulesErr != nil {
		gateway.logger.Warn(logEventModulesUnavailable, zap.Error(modulesErr))
		return model.DefaultAssetLabels()
	}
	return model.ResolveAssetLabels(modules)
}

// DashboardData fetches stats and branding concurrently. Only the stats
// request can fail the call.
func (gateway *Gateway) DashboardData(ctx context.Context, token string) (*model.DashboardStats, *model.Branding, error) {
	var stats *model.DashboardStats
	var branding *model.Branding
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		fetched, err := gateway.client.DashboardStats(groupCtx, token)
		if err != nil {
			return err
		}
		stats = fetched
		return nil
	})
	group.Go(func() error {
		branding = gateway.Branding(ctx, token)
		return nil
	})
	if waitErr := group.Wait(); waitErr != nil {
		return nil, branding, waitErr
	}
	return stats, branding, nil
}

// EmailLog fetches one page of the email log. It is never cached.
func (gateway *Gateway) EmailLog(ctx context.Context, token string, page int) (*model.EmailLogPage, error) {
	return gateway.client.EmailLog(ctx, token, page)
}

// EmailTemplates returns the cached template list.
func (gateway *Gateway) EmailTemplates(ctx context.Context, token string) ([]model.EmailTemplate, error) {
	return querycache.Fetch(ctx, gateway.cache, cacheKey(token, QueryEmailTemplates), 0, func(ctx context.Context) ([]model.EmailTemplate, error) {
		return gateway.client.EmailTemplates(ctx, token)
	})
}

// UpdateEmailTemplate submits the update and evicts the cached list so the
// next read refetches it.
func (gateway *Gateway) UpdateEmailTemplate(ctx context.Context, token string, id string, update model.TemplateUpdate) error {
	if updateErr := gateway.client.UpdateEmailTemplate(ctx, token, id, update); updateErr != nil {
		return updateErr
	}
	if invalidateErr := gateway.cache.Invalidate(ctx, cacheKey(token, QueryEmailTemplates)); invalidateErr != nil {
		gateway.logger.Warn(logEventCacheInvalidateFailed, zap.String("query", QueryEmailTemplates), zap.Error(invalidateErr))
	}
	return nil
}

// Export opens an export download.
func (gateway *Gateway) Export(ctx context.Context, token string, request model.ExportRequest) (*crmapi.ExportFile, error) {
	return gateway.client.Export(ctx, token, request)
}

// ReportSnapshot fetches the report collections concurrently. Yachts and
// vehicles are requested only when their module is enabled. The first failure
// cancels the remaining requests.
func (gateway *Gateway) ReportSnapshot(ctx context.Context, token string, labels model.AssetLabels) (model.ReportSnapshot, error) {
	var snapshot model.ReportSnapshot
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() (err error) {
		snapshot.Invoices, err = gateway.client.Invoices(groupCtx, token)
		return err
	})
	group.Go(func() (err error) {
		snapshot.Customers, err = gateway.client.Customers(groupCtx, token)
		return err
	})
	group.Go(func() (err error) {
		snapshot.Parts, err = gateway.client.Parts(groupCtx, token)
		return err
	})
	if labels.YachtEnabled {
		group.Go(func() (err error) {
			snapshot.Yachts, err = gateway.client.Yachts(groupCtx, token)
			return err
		})
	}
	if labels.DMSEnabled {
		group.Go(func() (err error) {
			snapshot.Vehicles, err = gateway.client.Vehicles(groupCtx, token)
			return err
		})
	}
	if waitErr := group.Wait(); waitErr != nil {
		return model.ReportSnapshot{}, waitErr
	}
	return snapshot, nil
}
