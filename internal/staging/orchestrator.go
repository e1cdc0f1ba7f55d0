// Package staging implements the staging state machine: deduplicate
// against the catalog, prepare per-asset transfer targets, submit
// streaming tasks to the cluster, reconcile completions, publish
// features and compensate on failure.
package staging

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rspy/rs-staging/internal/auth"
	"github.com/rspy/rs-staging/internal/catalog"
	"github.com/rspy/rs-staging/internal/cluster"
	"github.com/rspy/rs-staging/internal/jobs"
	"github.com/rspy/rs-staging/internal/storage"
)

// CatalogAPI is the slice of the catalog client the orchestrator
// consumes.
type CatalogAPI interface {
	SearchByIDs(ctx context.Context, collection string, ids []string, cookie string) (*catalog.SearchResponse, error)
	PublishItem(ctx context.Context, collection string, feature any, cookie string) error
	DeleteItem(ctx context.Context, collection, id, cookie string) error
}

// ObjectDeleter is the slice of the object store engine the
// compensation path consumes.
type ObjectDeleter interface {
	DeleteObjects(ctx context.Context, bucket string, keys []string) []storage.FailedItem
	Close()
}

// Settings carries the deployment-level knobs of one orchestrator.
type Settings struct {
	Bucket         string
	Timeout        time.Duration
	AuthConfigPath string
}

// Request is the caller's staging request. The session cookie is
// forwarded to every catalog call so the catalog applies the caller's
// tenant view.
type Request struct {
	JobID      string
	Items      *ItemCollection
	Collection string
	Station    string
	Cookie     string
}

// Receipt is the only thing the caller sees synchronously. Exactly
// one field is set.
type Receipt struct {
	Started  string `json:"started,omitempty"`
	Finished string `json:"finished,omitempty"`
	Failed   string `json:"failed,omitempty"`
}

// Orchestrator drives one staging request. Instances are single-use:
// the transfer set, task handles and stream list live for exactly one
// request and are never shared across requests.
type Orchestrator struct {
	req      Request
	settings Settings
	tracker  *jobs.Tracker
	catalog  CatalogAPI

	connect      func(ctx context.Context) (cluster.Client, error)
	stationToken func(ctx context.Context, station string) (string, error)
	newDeleter   func() (ObjectDeleter, error)

	streamList   []*Feature
	assetsInfo   []AssetTransfer
	featureByKey map[string]*Feature
	futures      []*cluster.Future

	// done closes when background processing has finished; callers
	// that need to observe completion (tests, graceful shutdown) can
	// wait on it with their own timeout.
	done chan struct{}
}

// NewOrchestrator builds the orchestrator for one request.
func NewOrchestrator(req Request, settings Settings, tracker *jobs.Tracker, catalogClient CatalogAPI, connect func(ctx context.Context) (cluster.Client, error)) *Orchestrator {
	o := &Orchestrator{
		req:          req,
		settings:     settings,
		tracker:      tracker,
		catalog:      catalogClient,
		connect:      connect,
		featureByKey: make(map[string]*Feature),
		done:         make(chan struct{}),
	}
	o.stationToken = o.loadStationToken
	o.newDeleter = func() (ObjectDeleter, error) { return storage.NewEngineFromEnv() }
	return o
}

// Done closes once background processing has ended, or immediately
// when the request finished synchronously.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// Execute starts the staging request and returns without waiting for
// any transfer. Only the job-record insert can fail the call itself;
// everything later is reported through the job tracker.
func (o *Orchestrator) Execute(ctx context.Context) (Receipt, error) {
	job := jobs.NewJob(o.req.JobID)
	if err := o.tracker.Create(ctx, job); err != nil {
		close(o.done)
		return Receipt{}, err
	}

	if o.req.Items == nil || len(o.req.Items.Features) == 0 {
		o.finish(ctx, "No valid items were provided in the input for staging")
		close(o.done)
		return Receipt{Finished: o.req.JobID}, nil
	}

	if !o.checkCatalog(ctx) {
		// checkCatalog already recorded the failure; this second
		// update is dropped by the tracker's terminal guard.
		o.fail(ctx, fmt.Sprintf("checking the collection '%s' failed", o.req.Collection))
		close(o.done)
		return Receipt{Failed: o.req.JobID}, nil
	}

	go func() {
		defer close(o.done)
		// The caller's request context ends when Execute returns;
		// background work carries its own lifetime.
		o.processFeatures(context.Background())
	}()

	return Receipt{Started: o.req.JobID}, nil
}

// checkCatalog resolves which of the requested features are already
// staged. Any search failure is terminal for the request: nothing has
// been transferred yet, so there is nothing to clean up.
func (o *Orchestrator) checkCatalog(ctx context.Context) bool {
	ids := make([]string, 0, len(o.req.Items.Features))
	for _, feature := range o.req.Items.Features {
		ids = append(ids, feature.ID)
	}

	resp, err := o.catalog.SearchByIDs(ctx, o.req.Collection, ids, o.req.Cookie)
	if err != nil {
		o.fail(ctx, fmt.Sprintf("Failed to search catalog: %s", err))
		return false
	}

	if err := o.createStreamingList(resp); err != nil {
		o.fail(ctx, fmt.Sprintf("Failed to search catalog: %s", err))
		return false
	}
	return true
}

// createStreamingList keeps every requested feature the catalog does
// not already know about, in the request's original order. A search
// response without a features list is a contract violation, never an
// implicit "stage everything" or "stage nothing".
func (o *Orchestrator) createStreamingList(resp *catalog.SearchResponse) error {
	if resp.Features == nil {
		return errors.New("catalog search response is missing the 'features' field")
	}

	if resp.Context.Returned == len(o.req.Items.Features) {
		o.streamList = nil
		return nil
	}

	staged := make(map[string]struct{}, len(*resp.Features))
	for _, ref := range *resp.Features {
		staged[ref.ID] = struct{}{}
	}

	for _, feature := range o.req.Items.Features {
		if _, ok := staged[feature.ID]; !ok {
			o.streamList = append(o.streamList, feature)
		}
	}
	return nil
}

// prepareStreamingTasks appends one transfer per asset and rewrites
// the asset href in place to its final s3 location, so the feature is
// publish-ready the moment its transfer lands. Assets are walked in
// sorted name order so the transfer set's index order is stable.
// Returns false on the first asset without an href or title; the
// caller aborts the whole request, so entries already appended for
// this feature are harmless.
func (o *Orchestrator) prepareStreamingTasks(feature *Feature) bool {
	names := make([]string, 0, len(feature.Assets))
	for name := range feature.Assets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		asset := feature.Assets[name]
		if asset.Href == "" {
			log.Error().Str("feature", feature.ID).Str("asset", name).Msg("Asset has no href")
			return false
		}
		if asset.Title == "" {
			log.Error().Str("feature", feature.ID).Str("asset", name).Msg("Asset has no title")
			return false
		}

		key := fmt.Sprintf("%s/%s/%s", o.req.Collection, feature.ID, asset.Title)
		o.assetsInfo = append(o.assetsInfo, AssetTransfer{SourceURL: asset.Href, Key: key})
		o.featureByKey[key] = feature
		asset.Href = fmt.Sprintf("s3://%s/%s", o.settings.Bucket, key)
	}
	return true
}

// processFeatures is the background flow of one staging request.
// Failures before task submission need no compensation; from the
// first submitted task onward, manageTaskResults owns cleanup.
func (o *Orchestrator) processFeatures(ctx context.Context) {
	defer func() { o.assetsInfo = nil }()

	o.update(ctx, jobs.StatusStarted, jobs.Progress(0), "Processing features")

	for _, feature := range o.streamList {
		if !o.prepareStreamingTasks(feature) {
			o.fail(ctx, "Unable to create tasks for the cluster")
			return
		}
	}

	if len(o.streamList) == 0 {
		o.finish(ctx, "Finished without processing any tasks")
		return
	}

	token, err := o.stationToken(ctx, o.req.Station)
	if err != nil {
		o.fail(ctx, err.Error())
		return
	}

	client, err := o.connect(ctx)
	if err != nil {
		o.fail(ctx, err.Error())
		return
	}
	defer client.Close()

	if err := o.submitTasks(ctx, token, client); err != nil {
		// Tasks already on the cluster stay outstanding; their
		// results have no consumer and expire on their own.
		o.fail(ctx, err.Error())
		return
	}

	o.manageTaskResults(ctx, client)
}

// submitTasks schedules one streaming task per transfer entry. Any
// submission error is fatal for the request.
func (o *Orchestrator) submitTasks(ctx context.Context, token string, client cluster.Client) error {
	for i, info := range o.assetsInfo {
		task := cluster.Task{
			ID:        fmt.Sprintf("%s-%d", o.req.JobID, i),
			JobID:     o.req.JobID,
			SourceURL: info.SourceURL,
			Token:     token,
			Bucket:    o.settings.Bucket,
			Key:       info.Key,
		}
		future, err := client.Submit(ctx, task)
		if err != nil {
			return fmt.Errorf("failed to submit task for %s: %w", info.Key, err)
		}
		o.futures = append(o.futures, future)
	}

	o.update(ctx, jobs.StatusInProgress, jobs.Progress(0),
		fmt.Sprintf("Sent %d tasks to the cluster", len(o.futures)))
	return nil
}

// manageTaskResults consumes task completions in arrival order. The
// first failed task (or failed publication) stops reconciliation:
// outstanding tasks are cancelled and every object of the request's
// transfer set is deleted, because the batch as a whole is failed.
func (o *Orchestrator) manageTaskResults(ctx context.Context, client cluster.Client) {
	if client == nil {
		log.Error().Str("job", o.req.JobID).Msg("No cluster client, nothing to reconcile")
		return
	}

	// The cancel releases AsCompleted's fan-in goroutines when
	// reconciliation stops before every task has been delivered.
	var (
		waitCtx context.Context
		cancel  context.CancelFunc
	)
	if o.settings.Timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, o.settings.Timeout)
	} else {
		waitCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	total := len(o.futures)
	completed := 0

	for future := range client.AsCompleted(waitCtx, o.futures) {
		if err := future.Err(); err != nil {
			o.handleTaskFailure(ctx, client, err)
			o.deleteFilesFromBucket(ctx)
			o.fail(ctx, fmt.Sprintf("At least one of the tasks failed: %s", err))
			return
		}

		feature := o.featureByKey[future.Task().Key]
		if feature == nil || !o.publishFeature(ctx, feature) {
			id := future.Task().Key
			if feature != nil {
				id = feature.ID
			}
			o.fail(ctx, fmt.Sprintf("The item %s couldn't be published in the catalog. Cleaning up", id))
			o.deleteFilesFromBucket(ctx)
			return
		}

		completed++
		o.update(ctx, jobs.StatusInProgress, jobs.Progress(completed*100/total), "In progress")
	}

	if completed < total {
		// The overall deadline elapsed; stop waiting without raising.
		log.Warn().
			Str("job", o.req.JobID).
			Int("completed", completed).
			Int("total", total).
			Msg("Stopped waiting for task completions after the staging timeout")
		return
	}

	o.finish(ctx, "Finished")
}

// handleTaskFailure logs the triggering error once and cancels every
// task not yet done. Cancellation races are expected and non-fatal.
func (o *Orchestrator) handleTaskFailure(ctx context.Context, client cluster.Client, cause error) {
	log.Error().Str("job", o.req.JobID).Err(cause).Msg("Task failed, cancelling the remaining tasks")

	for _, future := range o.futures {
		if future.Finished() {
			continue
		}
		taskID := future.Task().ID
		log.Info().Str("job", o.req.JobID).Str("task", taskID).Msg("Cancelling task")
		if err := client.Cancel(ctx, future); err != nil {
			if errors.Is(err, cluster.ErrAlreadyCancelled) {
				log.Info().Str("task", taskID).Msg("Task was already cancelled")
				continue
			}
			log.Warn().Str("task", taskID).Err(err).Msg("Failed to cancel task")
		}
	}
}

// deleteFilesFromBucket is the best-effort compensation step: it
// deletes every object of the request's transfer set, including those
// whose own task succeeded. It never raises; a cleanup failure must
// not crash the failure path it runs on.
func (o *Orchestrator) deleteFilesFromBucket(ctx context.Context) {
	if len(o.assetsInfo) == 0 {
		return
	}

	deleter, err := o.newDeleter()
	if err != nil {
		log.Error().Str("job", o.req.JobID).Err(err).Msg("Failed to build a storage client for cleanup")
		return
	}
	defer deleter.Close()

	keys := make([]string, 0, len(o.assetsInfo))
	for _, info := range o.assetsInfo {
		keys = append(keys, info.Key)
	}

	for _, item := range deleter.DeleteObjects(ctx, o.settings.Bucket, keys) {
		log.Warn().Str("key", item.Key).Err(item.Err).Msg("Failed to delete object during cleanup")
	}
}

// publishFeature posts one feature to the catalog. Publication
// failures are reported to the caller as false, never as a raised
// error.
func (o *Orchestrator) publishFeature(ctx context.Context, feature *Feature) bool {
	if err := o.catalog.PublishItem(ctx, o.req.Collection, feature, o.req.Cookie); err != nil {
		log.Error().Str("feature", feature.ID).Err(err).Msg("Failed to publish feature to the catalog")
		return false
	}
	return true
}

// UnpublishFeatures removes already-published features, best effort.
// Used by callers that roll back a wider batch; per-id failures are
// logged and skipped.
func (o *Orchestrator) UnpublishFeatures(ctx context.Context, featureIDs []string) {
	for _, id := range featureIDs {
		if err := o.catalog.DeleteItem(ctx, o.req.Collection, id, o.req.Cookie); err != nil {
			log.Error().Str("feature", id).Err(err).Msg("Failed to unpublish feature")
		}
	}
}

func (o *Orchestrator) loadStationToken(ctx context.Context, station string) (string, error) {
	cfg, err := auth.LoadExternalAuthConfig(o.settings.AuthConfigPath)
	if err != nil {
		return "", err
	}
	return cfg.StationToken(ctx, station)
}

func (o *Orchestrator) update(ctx context.Context, status jobs.Status, progress *int, detail string) {
	if err := o.tracker.Update(ctx, o.req.JobID, status, progress, detail); err != nil {
		log.Error().Str("job", o.req.JobID).Err(err).Msg("Failed to update job record")
	}
}

func (o *Orchestrator) finish(ctx context.Context, detail string) {
	o.update(ctx, jobs.StatusFinished, jobs.Progress(100), detail)
}

func (o *Orchestrator) fail(ctx context.Context, detail string) {
	o.update(ctx, jobs.StatusFailed, nil, detail)
}
