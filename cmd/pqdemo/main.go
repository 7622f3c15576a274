// Command pqdemo exercises every ordered-set and priority-queue
// structure in the module once with a small synthetic workload and
// logs what came out. It has no analog in the C source, which ships
// no driver program of its own; the shape here follows the pack's
// only cmd/ example, a flag-parsed log.Printf-driven CLI.
package main

import (
	"flag"
	"log"

	"github.com/willtor/pqueues-go/apqserver"
	"github.com/willtor/pqueues-go/btlf"
	"github.com/willtor/pqueues-go/fhslb"
	"github.com/willtor/pqueues-go/fhslfc"
	"github.com/willtor/pqueues-go/fhsllf"
	"github.com/willtor/pqueues-go/fhsltx"
	"github.com/willtor/pqueues-go/huntpq"
	"github.com/willtor/pqueues-go/ljpq"
	"github.com/willtor/pqueues-go/moundpq"
	"github.com/willtor/pqueues-go/slpq"
	"github.com/willtor/pqueues-go/spraypq"
	"github.com/willtor/pqueues-go/xrand"
)

func main() {
	n := flag.Int("n", 1000, "number of keys to exercise each structure with")
	threads := flag.Int("threads", 4, "thread count used by structures that are shaped by it")
	flag.Parse()

	seed := xrand.NewSeed(1)

	runSetDemo(*n, &seed)
	runQueueDemo(*n, *threads, &seed)
	runFlatCombiningDemo(*n, *threads, &seed)
}

func runSetDemo(n int, seed *uint64) {
	tree := btlf.New()
	lf := fhsllf.New()
	tx := fhsltx.New()

	for i := 0; i < n; i++ {
		k := int64(xrand.Next(seed) % uint64(n*4))
		tree.Add(k)
		lf.Add(k, seed)
		tx.Add(k, seed)
	}
	log.Printf("btlf: %d keys added, contains(0)=%v", n, tree.Contains(0))
	log.Printf("fhsllf: %d keys added, contains(0)=%v", n, lf.Contains(0))
	log.Printf("fhsltx: %+v", tx.Stats())
}

func runQueueDemo(n, threads int, seed *uint64) {
	sl := slpq.New()
	lj := ljpq.New()
	spray := spraypq.New(threads)
	hunt := huntpq.New(n * 2)
	mound := moundpq.New()

	for i := 0; i < n; i++ {
		k := int64(xrand.Next(seed) % uint64(n*4))
		sl.Add(k, seed)
		lj.Add(k, seed)
		spray.Add(k, seed)
		hunt.Add(k)
		mound.Add(k, seed)
	}

	drain := func(name string, pop func() (int64, bool)) {
		count := 0
		for {
			if _, ok := pop(); !ok {
				break
			}
			count++
		}
		log.Printf("%s: drained %d of %d inserted", name, count, n)
	}
	drain("slpq", sl.PopMin)
	drain("ljpq", lj.PopMin)
	drain("spraypq", func() (int64, bool) { return spray.PopMin(seed) })
	drain("huntpq", hunt.PopMin)
	drain("moundpq", mound.PopMin)
}

func runFlatCombiningDemo(n, threads int, seed *uint64) {
	b := fhslb.New()
	for i := 0; i < n; i++ {
		b.Add(int64(xrand.Next(seed)%uint64(n*4)), seed)
	}
	log.Printf("fhslb: %+v", b.Stats())

	fc := fhslfc.New(threads)
	defer fc.Close()
	for i := 0; i < n; i++ {
		fc.Add(0, int64(xrand.Next(seed)%uint64(n*4)))
	}
	popped := 0
	for {
		if _, ok := fc.PopMin(0); !ok {
			break
		}
		popped++
	}
	log.Printf("fhslfc: drained %d via the flat-combining server", popped)

	srv := apqserver.New(threads, int64(n))
	defer srv.Close()
	for i := 0; i < n; i++ {
		srv.Add(0, int64(xrand.Next(seed)%uint64(n*4)), seed)
	}
	popped = 0
	for {
		if _, ok := srv.PopMin(0); !ok {
			break
		}
		popped++
	}
	log.Printf("apqserver: drained %d below-cutoff keys via the server tier", popped)
}
