// Package historian fetches summarised time series from a PI Web API server.
//
// One request is made per tag:
//
//	GET {base}/streams/{webId}/summary?startTime=..&endTime=..&summaryType=..&summaryDuration=..&interval=..
//
// with HTTP basic authentication. The window and summary type come from
// the run configuration and are the same for every tag in a batch.
//
// There is no retry or backoff. A failed tag is reported to the caller,
// which logs it and moves on.
//
// # Errors
//
//   - *StatusError (matches ErrUnexpectedStatus): server answered with a non-200
//   - ErrRequestFailed: no response (DNS, TLS, timeout, cancellation)
//   - ErrMalformedResponse: 200 response that is not a summary payload
//
// # Usage
//
//	client, err := historian.New(cfg.Historian, cfg.Run.Window)
//	if err != nil {
//	    return err
//	}
//	points, err := client.Summary(ctx, webID)
package historian
