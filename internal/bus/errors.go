package bus

import "errors"

// ErrAlreadySubscribed is returned by Subscribe (and Publisher.AddSubscriber)
// when a (topic, subscriber name) pair already has an active subscription.
var ErrAlreadySubscribed = errors.New("bus: already subscribed")

// ErrNotFound names the "no matching subscriber" outcome. Unsubscribe and
// UnsubscribeByID do not return it; they report that case as false.
var ErrNotFound = errors.New("bus: subscriber not found")
