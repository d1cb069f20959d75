package signal

import "context"

// SignalChildDone emits the empty signal_send that lets a parent
// orchestrator rendezvous on a child run's completion, per an inbound
// envelope's metadata.orchestrate.done_topic convention. A no-op when
// doneTopic is empty or the config disables auto child signaling.
func (s *Signaler) SignalChildDone(ctx context.Context, conversationID, doneTopic string) error {
	if doneTopic == "" || !s.cfg.AutoChildSignalDone {
		return nil
	}
	_, err := s.Send(ctx, conversationID, doneTopic, map[string]any{})
	return err
}
