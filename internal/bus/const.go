package bus

// DefaultQueueSize is the subscriber queue capacity used when a caller
// does not specify one explicitly (the bridge uses this for subscriptions
// it creates on behalf of a remote peer).
const DefaultQueueSize = 256
