// Command pcjnode launches one process of a PGAS/SPMD job: it joins
// (or starts) the node mesh, runs the named entry point on every
// local thread, then drains the job through the bye tree before
// exiting.
package main

import (
	"fmt"
	"os"
	goruntime "runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/alecthomas/kingpin/v2"

	"github.com/jabolina/pcj/pkg/pcj/config"
	"github.com/jabolina/pcj/pkg/pcj/logging"
	"github.com/jabolina/pcj/pkg/pcj/runtime"
	"github.com/jabolina/pcj/pkg/pcj/types"
)

// Exit codes: 0 normal, non-zero otherwise. The three non-zero codes
// below distinguish where in the lifecycle the failure happened.
const (
	exitOK             = 0
	exitLaunchFailure  = 1
	exitNetworkFailure = 2
	exitUserException  = 3
)

var (
	host          = kingpin.Flag("host", "hostname other nodes use to dial this process (defaults to the OS hostname)").Default("").String()
	port          = kingpin.Flag("port", "local listen port").Required().Int()
	node0Host     = kingpin.Flag("node0-host", "node 0's host; empty means this process is node 0").Default("").String()
	node0Port     = kingpin.Flag("node0-port", "node 0's port").Default("0").Int()
	totalThreads  = kingpin.Flag("threads", "total logical thread count across the job").Required().Int()
	localThreadsF = kingpin.Flag("local-thread-ids", "comma-separated global thread ids homed on this process").Required().String()
	entry         = kingpin.Flag("entry", "registered entry point name to run on each local thread").Required().String()
	configFile    = kingpin.Flag("config", "optional configuration file").Default("").String()
)

func main() {
	kingpin.Parse()

	localIDs, err := parseThreadIDs(*localThreadsF)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pcjnode: %v\n", err)
		os.Exit(exitLaunchFailure)
	}

	fn, ok := entryPoints[*entry]
	if !ok {
		fmt.Fprintf(os.Stderr, "pcjnode: no entry point registered as %q\n", *entry)
		os.Exit(exitLaunchFailure)
	}

	cfg, err := config.Load(*configFile, goruntime.NumCPU())
	if err != nil {
		fmt.Fprintf(os.Stderr, "pcjnode: loading config: %v\n", err)
		os.Exit(exitLaunchFailure)
	}
	log := logging.NewWithLevel(cfg.LogLevel)

	hostname := *host
	if hostname == "" {
		hostname, err = os.Hostname()
		if err != nil {
			fmt.Fprintf(os.Stderr, "pcjnode: resolving local hostname: %v\n", err)
			os.Exit(exitLaunchFailure)
		}
	}

	rt, err := runtime.Bootstrap(runtime.Options{
		Hostname:       hostname,
		Port:           *port,
		Node0Host:      *node0Host,
		Node0Port:      *node0Port,
		TotalThreads:   *totalThreads,
		LocalThreadIDs: localIDs,
		Config:         cfg,
		Log:            log,
	})
	if err != nil {
		log.Errorf("bootstrap failed: %v", err)
		os.Exit(exitNetworkFailure)
	}

	userErr := runLocalThreads(rt, fn)

	if err := rt.Shutdown(); err != nil {
		log.Warnf("shutdown: %v", err)
	}

	if userErr != nil {
		log.Errorf("entry point %q failed: %v", *entry, userErr)
		os.Exit(exitUserException)
	}
	os.Exit(exitOK)
}

// runLocalThreads runs fn once per local thread, concurrently, and
// returns the first error observed. Order among concurrent failures is
// not significant: a propagated user exception on any thread is fatal
// to the whole process regardless of which thread raised it.
func runLocalThreads(rt *runtime.Runtime, fn EntryFunc) error {
	threads := rt.LocalThreads()
	var wg sync.WaitGroup
	errs := make([]error, len(threads))
	for i, thread := range threads {
		wg.Add(1)
		go func(i int, thread types.GlobalThreadID) {
			defer wg.Done()
			errs[i] = fn(rt, thread)
		}(i, thread)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func parseThreadIDs(raw string) ([]types.GlobalThreadID, error) {
	parts := strings.Split(raw, ",")
	ids := make([]types.GlobalThreadID, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("parsing --local-thread-ids entry %q: %w", p, err)
		}
		ids = append(ids, types.GlobalThreadID(n))
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("--local-thread-ids must name at least one thread")
	}
	return ids, nil
}
