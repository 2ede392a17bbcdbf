// Package gateway assembles the sample-bus operation boundary: a
// permission guard, a tiered rate limiter, a subscription registry, and
// a bus adapter behind one set of flat-result operations.
//
// Every data-plane call (subscribe, read, write) passes the guard
// first, then the limiter, then reaches the bus. Failures from any
// collaborator are converted into the operation's result, so a caller
// session is never crashed by one failed call:
//
//	gw, err := gateway.New(gateway.Config{Bus: b, Guard: guard, Limiter: limiter})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer gw.Close()
//
//	res := gw.Write(ctx, "control", "vehicle/cmd", map[string]interface{}{"brake": true})
//	if !res.OK() {
//		// res.Error explains the denial, rejection, or bus fault.
//	}
//
// Requests can also be routed through Dispatch, which resolves a closed
// Op enum instead of a string-keyed lookup.
//
// Start launches the maintenance scheduler: the adaptive rate control
// loop (when an adaptive controller and a load source are configured)
// and an optional cron-scheduled stats log line. Close stops the
// scheduler, cascades teardown over every session, drains the dispatch
// pool, and closes the bus.
package gateway
