// Package handler provides the item processors used by the zpoll worker.
//
// Exec runs a command once per claimed item, passing the item as arguments
// and as ZPOLL_MEMBER / ZPOLL_SCORE in the environment; a non-zero exit
// fails the item. Log only records the item. Compose pairs a processor with
// a readiness predicate to form a poller.Handler.
package handler
