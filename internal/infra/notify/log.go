// Package notify contains the best-effort notification gateway. Delivery is
// an external concern; this implementation only records the dispatch.
package notify

import "log"

type LogGateway struct{}

// SendCode stands in for the SMS channel. The code is written to the log,
// which is the delivery medium of this implementation; real channels get
// the code the same way.
func (LogGateway) SendCode(phone, code, transactionID string) error {
	log.Printf("notify: code dispatch phone=%s code=%s txn=%s", maskPhone(phone), code, transactionID)
	return nil
}

func (LogGateway) SendReminder(email, workflowID, documentName string) error {
	log.Printf("notify: reminder email=%s workflow=%s document=%q", email, workflowID, documentName)
	return nil
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "****" + phone[len(phone)-4:]
}
