// Package id generates sortable member names for items enqueued without one.
//
// An ID is 16 bytes big-endian, [8 bytes ms_timestamp][8 bytes sequence], and
// renders as 32 lowercase hex digits. The hex form sorts like the bytes, so two
// generated members with equal scores are claimed in generation order.
//
// Usage
//
//	g := id.NewGenerator()
//	member := g.Member("job-") // "job-0000018f..."
//	parsed, _ := id.Parse(strings.TrimPrefix(member, "job-"))
//	created := parsed.Time()
package id
