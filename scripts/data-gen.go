/*
	Basic Script that generates random churn against a datastore directory to
	help create lots of rotated files for testing recovery.

	go run ./scripts -dir ./data
*/

package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/0xRadioAc7iv/caskdb/core"
	"github.com/0xRadioAc7iv/caskdb/internal/utils"
)

const (
	concurrency = 6

	// Fixed universe
	totalKeys   = 100
	totalValues = 100

	// Per-cycle behavior
	keysPerCycleWrite  = 20
	keysPerCycleDelete = 10
	cyclesPerWorker    = 500

	progressEvery = 100
)

func main() {
	dir := flag.String("dir", "./data", "Datastore directory to churn")
	dfsize := flag.Int64("dfsize", 1, "Max Datafile Size (in MB)")
	flag.Parse()

	if _, err := utils.PrepareDirectory(*dir, true); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ds, err := core.Open(*dir,
		core.WithLogger(logger),
		core.WithMaxDatafileSize(*dfsize*core.OneMegabyte))
	if err != nil {
		logger.Fatal("Failed to open datastore", zap.Error(err))
	}
	defer ds.Close()

	start := time.Now()
	logger.Info("Starting churn-heavy load generator", zap.String("dir", *dir))

	keys := makeKeys(totalKeys)
	values := makeValues(totalValues)

	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runWorker(id, ds, keys, values, logger)
		}(i)
	}

	wg.Wait()

	n, _ := ds.Len()
	logger.Info("Load finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("live_keys", n),
		zap.String("active", ds.ActiveFile()))
}

func runWorker(id int, ds *core.Datastore, keys, values [][]byte, logger *zap.Logger) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))
	log := logger.With(zap.Int("worker", id))

	for cycle := 1; cycle <= cyclesPerWorker; cycle++ {

		// ---- WRITE / OVERWRITE PHASE ----
		for i := 0; i < keysPerCycleWrite; i++ {
			if err := ds.Insert(keys[rng.Intn(len(keys))], values[rng.Intn(len(values))]); err != nil {
				log.Error("Insert failed", zap.Error(err))
				return
			}
		}

		// ---- DELETE PHASE ----
		for i := 0; i < keysPerCycleDelete; i++ {
			if err := ds.Delete(keys[rng.Intn(len(keys))]); err != nil {
				log.Error("Delete failed", zap.Error(err))
				return
			}
		}

		// ---- READ PHASE ----
		for i := 0; i < keysPerCycleWrite/2; i++ {
			if _, _, err := ds.Get(keys[rng.Intn(len(keys))]); err != nil {
				log.Error("Get failed", zap.Error(err))
				return
			}
		}

		if cycle%progressEvery == 0 {
			log.Info("Completed cycles", zap.Int("cycles", cycle))
		}
	}
}

func makeKeys(n int) [][]byte {
	keys := make([][]byte, n)
	for i := 0; i < n; i++ {
		keys[i] = []byte(fmt.Sprintf("key-%03d", i))
	}
	return keys
}

func makeValues(n int) [][]byte {
	values := make([][]byte, n)
	for i := 0; i < n; i++ {
		values[i] = []byte(fmt.Sprintf("value-%03d-xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx", i))
	}
	return values
}
