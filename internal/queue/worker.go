package queue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// Worker processes jobs from the queue and drives recurring jobs through
// a gocron scheduler
type Worker struct {
	queue      *Queue
	jobTypes   []JobType
	numWorkers int
	wg         sync.WaitGroup
	quit       chan struct{}
	scheduler  *gocron.Scheduler
}

// NewWorker creates a new worker for the given job types
func NewWorker(q *Queue, jobTypes []JobType, numWorkers int) *Worker {
	return &Worker{
		queue:      q,
		jobTypes:   jobTypes,
		numWorkers: numWorkers,
		quit:       make(chan struct{}),
		scheduler:  gocron.NewScheduler(time.UTC),
	}
}

// ScheduleRecurring registers a recurring task with the scheduler
func (w *Worker) ScheduleRecurring(interval time.Duration, task func()) error {
	_, err := w.scheduler.Every(interval).Do(task)
	return err
}

// Start starts the worker goroutines and the scheduler
func (w *Worker) Start() {
	log.Printf("Starting %d workers for %d job types", w.numWorkers, len(w.jobTypes))

	for i := 0; i < w.numWorkers; i++ {
		w.wg.Add(1)
		go w.process(i)
	}

	w.scheduler.StartAsync()
}

// Stop stops the worker and waits for in-flight jobs to finish
func (w *Worker) Stop() {
	close(w.quit)
	w.wg.Wait()
	w.scheduler.Stop()
}

// process pulls jobs off the queue and dispatches them to handlers
func (w *Worker) process(workerID int) {
	defer w.wg.Done()

	for {
		select {
		case <-w.quit:
			log.Printf("Worker %d stopped", workerID)
			return
		default:
			for _, jobType := range w.jobTypes {
				job, err := w.queue.Dequeue(jobType, 1*time.Second)
				if err != nil {
					log.Printf("Error dequeueing %s job: %v", jobType, err)
					time.Sleep(1 * time.Second)
					continue
				}
				if job == nil {
					continue
				}

				handler, ok := w.queue.Handler(job.Type)
				if !ok {
					log.Printf("No handler registered for job type %s", job.Type)
					continue
				}

				if err := handler(context.Background(), *job); err != nil {
					log.Printf("Job %s (%s) failed: %v", job.ID, job.Type, err)
					w.queue.Fail(job, err)
					continue
				}
				w.queue.Complete(job)
			}
		}
	}
}
