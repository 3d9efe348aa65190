package tinystm

/*
TinyStm is a software transactional memory for Go built on the TL2 design: a fixed-size byte region split into stripes,
a versioned lock per stripe and one global version clock. Transactions run optimistically and are validated against
the clock at commit, so readers never take locks and writers only lock the stripes they write, and only while
committing.

The engine lives in the stm package (and the stripe primitives in stm/memory). The workload package stresses it with the
dining philosophers and an observer that checks every snapshot for half-applied commits; cmd/tinystm runs that workload
from the command line, optionally with a status server exposing Prometheus metrics.

TinyStm keeps everything in memory. It has no durability, no nested transactions and no fairness guarantees: a
transaction that keeps losing conflicts keeps retrying.
*/
