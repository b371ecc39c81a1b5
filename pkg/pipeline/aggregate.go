package pipeline

import "time"

// receivedLayout is the source API's receive timestamp format.
const receivedLayout = "2006-01-02T15:04:05Z"

// FormatReceivedDate reformats an ISO-8601 UTC timestamp to YYYY/MM/DD.
// No timezone conversion is applied. Returns "" for unparseable input.
func FormatReceivedDate(ts string) string {
	t, err := time.Parse(receivedLayout, ts)
	if err != nil {
		return ""
	}
	return t.Format("2006/01/02")
}

// Aggregate folds records into one summary per normalized recipient address.
//
// For each record, the deduplicated set of addresses across to/cc/bcc is
// touched once for initialization, but the count increments by the number of
// occurrences across the role sequences: an address in both cc and bcc of one
// message counts twice. The display name is set the first time an address is
// seen and never overwritten. The last-interaction date is the lexical max of
// the YYYY/MM/DD-formatted dates, which orders correctly for that format.
//
// The fold is single-threaded and its totals are order-independent, since
// counting and max are commutative.
func Aggregate(msgs []Message) map[string]*RecipientSummary {
	stats := make(map[string]*RecipientSummary)

	for _, msg := range msgs {
		combined := make([]string, 0, len(msg.To)+len(msg.Cc)+len(msg.Bcc))
		combined = append(combined, msg.To...)
		combined = append(combined, msg.Cc...)
		combined = append(combined, msg.Bcc...)

		date := FormatReceivedDate(msg.Received)

		touched := make(map[string]bool, len(combined))
		for _, raw := range combined {
			key := NormalizeAddress(raw)
			if key == "" || touched[key] {
				continue
			}
			touched[key] = true

			s, ok := stats[key]
			if !ok {
				s = &RecipientSummary{
					Email:   key,
					Company: AddressDomain(key),
					Name:    msg.Names[raw],
				}
				stats[key] = s
			}

			s.TotalMailsSent += countOccurrences(combined, key)
			if date > s.LastInteracted {
				s.LastInteracted = date
			}
		}
	}

	return stats
}

// countOccurrences counts how often key appears in addrs, compared after
// normalization.
func countOccurrences(addrs []string, key string) int {
	n := 0
	for _, a := range addrs {
		if NormalizeAddress(a) == key {
			n++
		}
	}
	return n
}
