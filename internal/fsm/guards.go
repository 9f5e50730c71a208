package fsm

import (
	"strings"

	"github.com/rotisserie/eris"
)

// guardValidButton requires a recognized button type on the candidate
// payload.
func guardValidButton(_ *Manager, _ Snapshot, p Payload) error {
	if !p.Button.Valid() {
		return eris.Errorf("fsm: invalid button type %q", p.Button)
	}
	return nil
}

// guardHasAIResponse requires a non-empty model output after trimming.
func guardHasAIResponse(_ *Manager, _ Snapshot, p Payload) error {
	if strings.TrimSpace(p.AIResponse) == "" {
		return eris.New("fsm: empty ai response")
	}
	return nil
}

// guardUnderMaxAttempts bounds retry storms: once the recovery counter
// hits the ceiling, callers must abort, reset, or press a button.
func guardUnderMaxAttempts(m *Manager, s Snapshot, _ Payload) error {
	if s.ErrorRecoveryAttempts >= m.maxAttempts {
		return eris.Errorf("fsm: error recovery attempts exhausted (%d/%d)",
			s.ErrorRecoveryAttempts, m.maxAttempts)
	}
	return nil
}

// guardErrorCooldownElapsed gates auto-recovery on the error state
// being resident long enough to outlast a transient failure.
func guardErrorCooldownElapsed(m *Manager, s Snapshot, _ Payload) error {
	resident := m.now().Sub(s.ErrorEnteredAt)
	if resident < m.cooldown {
		return eris.Errorf("fsm: error resident %s, auto-recover requires %s", resident, m.cooldown)
	}
	return nil
}
