package coordinator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"datakraken/internal/fetcher"
	"datakraken/internal/runlog"
	"datakraken/internal/snapshot"
)

const defaultWorkers = 4

// Job pairs a source fetcher with the cache policy it is resolved under.
type Job struct {
	Fetcher fetcher.Fetcher
	Policy  snapshot.Policy
}

// Coordinator resolves a batch of jobs through one shared snapshot session.
// Jobs run concurrently with a bounded worker count; one job failing does
// not abort the others.
type Coordinator struct {
	session *snapshot.Session
	jobs    []Job
	workers int
	log     *runlog.Log
}

// New creates a coordinator for jobs over session.
func New(session *snapshot.Session, jobs []Job) *Coordinator {
	return &Coordinator{
		session: session,
		jobs:    jobs,
		workers: defaultWorkers,
	}
}

// SetWorkers bounds the number of concurrently running jobs.
func (c *Coordinator) SetWorkers(n int) *Coordinator {
	if n > 0 {
		c.workers = n
	}
	return c
}

// SetRunLog attaches a run log that records per-resource progress.
func (c *Coordinator) SetRunLog(l *runlog.Log) *Coordinator {
	c.log = l
	return c
}

// Run resolves all jobs and returns one result per job, in completion
// order. The returned error covers coordinator-level failures only;
// per-job fetch and store errors are reported in their Result.
func (c *Coordinator) Run(ctx context.Context) ([]fetcher.Result, error) {
	if len(c.jobs) == 0 {
		return nil, fmt.Errorf("no jobs configured")
	}

	resultChan := make(chan fetcher.Result, len(c.jobs))

	g := &errgroup.Group{}
	g.SetLimit(c.workers)

	for _, job := range c.jobs {
		g.Go(func() error {
			art, hit, err := c.session.Get(ctx, job.Fetcher.Key(), job.Policy, job.Fetcher.Fetch)

			res := fetcher.Result{Key: job.Fetcher.Key(), Err: err}
			if err == nil {
				res.Bucket = art.Bucket
				res.CacheHit = hit
				res.Length = art.Length
			}
			resultChan <- res
			return nil
		})
	}

	go func() {
		g.Wait()
		close(resultChan)
	}()

	var results []fetcher.Result
	for res := range resultChan {
		c.record(res)
		results = append(results, res)
	}

	return results, nil
}

// record writes one result to the run log, if one is attached.
func (c *Coordinator) record(res fetcher.Result) {
	if c.log == nil {
		return
	}

	resource := res.Key.String()
	switch {
	case res.Err != nil:
		_ = c.log.Log(runlog.Entry{
			Resource: resource,
			Status:   runlog.StatusErr,
			Error:    res.Err.Error(),
		})
		_ = c.log.MarkErr(res.Key.ResourceID, map[string]any{
			"resource": resource,
			"error":    res.Err.Error(),
		})
	case res.CacheHit:
		_ = c.log.Log(runlog.Entry{
			Resource: resource,
			Status:   runlog.StatusSkip,
			Bucket:   res.Bucket,
			Reason:   "exists",
		})
	default:
		_ = c.log.Log(runlog.Entry{
			Resource: resource,
			Status:   runlog.StatusOK,
			Bucket:   res.Bucket,
		})
		_ = c.log.MarkOK(res.Key.ResourceID)
	}
}
