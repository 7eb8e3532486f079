package main

import (
	"context"
	"encoding/binary"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/grovedb/grove/core/buffer/pool"
	"github.com/grovedb/grove/core/index/btree"
	"github.com/grovedb/grove/core/storage/disk"
	"github.com/grovedb/grove/core/storage/page"
	"github.com/grovedb/grove/pkg/logger"
	"github.com/grovedb/grove/pkg/telemetry"
)

const (
	poolSize        = 256
	lruK            = 2
	leafMaxSize     = 64
	internalMaxSize = 64
	firstKey        = 9000
	lastKey         = 11000
)

func key(i int) (k page.Key8) {
	binary.BigEndian.PutUint64(k[:], uint64(i))
	return
}

func main() {
	baseDataDir := "/tmp/grove"
	if err := os.MkdirAll(baseDataDir, 0755); err != nil {
		log.Fatalf("failed to create data dir: %v", err)
	}
	dbPath := filepath.Join(baseDataDir, "btree.db")
	_ = os.Remove(dbPath)

	zlogger, _ := logger.New(logger.Config{Level: "error"})
	tel, shutdown, err := telemetry.New(telemetry.Config{
		Enabled:        true,
		ServiceName:    "grove-btree-bench",
		PrometheusPort: 0,
	})
	if err != nil {
		log.Fatalf("failed to init telemetry: %v", err)
	}
	defer shutdown(context.Background())

	dm, err := disk.NewManager(dbPath, disk.DefaultPageSize, zlogger)
	if err != nil {
		log.Fatalf("failed to create disk manager: %v", err)
	}
	defer dm.Close()

	bpm, err := pool.NewBufferPoolManager(poolSize, lruK, dm, tel.Meter, zlogger)
	if err != nil {
		log.Fatalf("failed to create buffer pool: %v", err)
	}

	tree, err := btree.New("bench_index", bpm, page.Codec8(), leafMaxSize, internalMaxSize, zlogger.Named("btree_index"))
	if err != nil {
		log.Fatalf("failed to create btree: %v", err)
	}

	write(tree)
	read(tree)

	if err := tree.Close(); err != nil {
		log.Fatalf("failed to flush: %v", err)
	}
}

func write(tree *btree.BTree[page.Key8]) {
	start := time.Now()
	wg := sync.WaitGroup{}
	maxWorkers := 20
	sem := make(chan struct{}, maxWorkers)
	for i := firstKey; i < lastKey; i++ {
		sem <- struct{}{}
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			ok, err := tree.Insert(key(i), page.RID{PageID: page.PageID(i), Slot: uint32(i)})
			if err != nil {
				log.Println("Insert Error: ", strconv.Itoa(i), err)
				return
			}
			if !ok {
				log.Println("DUPLICATE: ", strconv.Itoa(i))
			}
		}()
	}
	wg.Wait()
	log.Printf("wrote %d keys in %s", lastKey-firstKey, time.Since(start))
}

func read(tree *btree.BTree[page.Key8]) {
	start := time.Now()
	wg := sync.WaitGroup{}
	maxWorkers := 10
	sem := make(chan struct{}, maxWorkers)
	for i := firstKey; i < lastKey; i++ {
		sem <- struct{}{}
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			rid, found, err := tree.GetValue(key(i))
			if err != nil {
				log.Println("Search Error: ", strconv.Itoa(i), err)
				return
			}
			if !found {
				log.Println("NOT FOUND: ", strconv.Itoa(i))
				return
			}
			if rid.PageID != page.PageID(i) || rid.Slot != uint32(i) {
				log.Println("MISMATCH: ", strconv.Itoa(i))
			}
		}()
	}
	wg.Wait()
	log.Printf("read %d keys in %s", lastKey-firstKey, time.Since(start))
}
