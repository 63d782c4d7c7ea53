// Package client submits calls to a queued remote compute backend and
// tracks each one as a job.Job.
//
// A Client owns the HTTP client, the session hash and a bounded worker
// pool. Submit returns at once; a worker then sends the call, follows the
// server's event stream and feeds every status and output to the Job
// through its communicator. Cancelling a Job aborts the stream read right
// away and asks the server to drop the event.
//
//	c, err := client.New("http://localhost:7860")
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	j, err := c.SubmitAPI(ctx, "/predict", "hello")
//	if err != nil {
//		return err
//	}
//	out, err := j.Result(ctx)
package client
