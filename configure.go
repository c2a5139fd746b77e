package motorsbus

import (
	"time"

	"github.com/pkg/errors"
)

const baudWriteRetries = 10

// ConfirmFunc is invoked by ConfigureMotors whenever the protocol needs the
// operator to physically connect (or reconnect) a motor. The interactive
// terminal prompt itself lives in cmd/find-port-style tooling, out of
// scope here (§1); ConfigureMotors only needs a hook to block on it.
type ConfirmFunc func(message string) error

// scanResult maps every ID that answered a probe, across every baud in the
// table, to the baud code it answered at.
type scanResult map[byte]int

func (b *Bus) scanAllBauds(idAddr uint16, idWidth int, baudTable map[int]int) (scanResult, error) {
	seen := make(scanResult)
	for code, bps := range baudTable {
		if err := b.t.SetBaudRate(bps); err != nil {
			return nil, errors.Wrapf(err, "configure: set baud %d", bps)
		}
		for id := 0; id <= maxScanID; id++ {
			got, err := b.t.ReadOne(byte(id), idAddr, idWidth)
			if err != nil {
				continue
			}
			if byte(got) != byte(id) {
				continue
			}
			seen[byte(id)] = code
		}
	}
	return seen, nil
}

// ConfigureMotors drives the one-motor-at-a-time ID/baud assignment
// protocol (§4.5): scan the bus at every known baud, compute the pool of
// untaken IDs, then for each roster slot prompt the operator to connect one
// more physical motor, detect it, move it to the canonical baud, and park
// it at a scratch ID before finally relabeling every motor to its roster
// ID with one single-motor write per scratch ID.
func (b *Bus) ConfigureMotors(confirm ConfirmFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return ErrNotConnected
	}
	if len(b.motors) == 0 {
		return nil
	}

	models := make([]string, len(b.motors))
	rosterIDs := make(map[byte]bool, len(b.motors))
	for i, m := range b.motors {
		models[i] = m.Model
		rosterIDs[m.ID] = true
	}

	idEntry, err := b.registry.AssertSameAddress(models, RegisterID)
	if err != nil {
		return err
	}
	baudEntry, err := b.registry.AssertSameAddress(models, RegisterBaudRate)
	if err != nil {
		return err
	}
	baudTable, err := b.registry.BaudCodes(b.motors[0].Model)
	if err != nil {
		return err
	}
	canonicalCode := -1
	for code, bps := range baudTable {
		if bps == CanonicalBaud {
			canonicalCode = code
		}
	}
	if canonicalCode < 0 {
		return errf("configure: model %q has no baud code for canonical rate %d", b.motors[0].Model, CanonicalBaud)
	}

	seen, err := b.scanAllBauds(idEntry.Address, idEntry.Width, baudTable)
	if err != nil {
		return err
	}
	untaken := make([]byte, 0, maxScanID+1)
	for id := 0; id <= maxScanID; id++ {
		bid := byte(id)
		if _, wasSeen := seen[bid]; !wasSeen && !rosterIDs[bid] {
			untaken = append(untaken, bid)
		}
	}
	if len(untaken) < len(b.motors) {
		return errf("configure: not enough untaken ids on the bus (need %d, have %d)", len(b.motors), len(untaken))
	}

	relabeled := make(map[byte]bool, len(b.motors))
	priorSeen := make(map[byte]bool, len(seen))
	for id := range seen {
		priorSeen[id] = true
	}

	for i := range b.motors {
		if confirm != nil {
			if err := confirm("connect one more motor to the bus"); err != nil {
				return err
			}
		}

		if i >= 1 {
			if err := b.t.SetBaudRate(CanonicalBaud); err != nil {
				return errors.Wrap(err, "configure: set canonical baud")
			}
			for _, id := range untaken[:i] {
				if _, err := b.t.ReadOne(id, idEntry.Address, idEntry.Width); err != nil {
					if confirm != nil {
						if err := confirm("a previously configured motor is unreachable, reconnect it"); err != nil {
							return err
						}
					}
				}
			}
		}

		rescan, err := b.scanAllBauds(idEntry.Address, idEntry.Width, baudTable)
		if err != nil {
			return err
		}
		// A motor counts as "the new one" for this slot if it answers and
		// hasn't already been parked at a scratch id this run. Roster ids are
		// never excluded by priorSeen: a motor that already carries its
		// roster id (e.g. configure_motors re-run against an already
		// configured bus) must still be recognized here, exactly as
		// find_motor_indices(possible_ids) in the source does not special-
		// case the roster pool out of its candidate set. Only a non-roster
		// id that was already present during the opening scan (some other,
		// already-accounted-for motor) is excluded as noise.
		var newIDs []byte
		for id := range rescan {
			if relabeled[id] {
				continue
			}
			if priorSeen[id] && !rosterIDs[id] {
				continue
			}
			newIDs = append(newIDs, id)
		}
		switch {
		case len(newIDs) == 0:
			return ErrMotorNotFound
		case len(newIDs) > 1:
			return ErrAmbiguousBus
		}
		newID := newIDs[0]
		newBaudCode := rescan[newID]

		if newBaudCode != canonicalCode {
			ok := false
			for attempt := 0; attempt < baudWriteRetries; attempt++ {
				if err := b.t.SetBaudRate(baudTable[newBaudCode]); err != nil {
					continue
				}
				payload, err := encodeValue(int32(canonicalCode), baudEntry.Width)
				if err != nil {
					return err
				}
				if err := b.t.WriteOne(newID, baudEntry.Address, payload); err != nil {
					continue
				}
				time.Sleep(500 * time.Millisecond)
				if err := b.t.SetBaudRate(CanonicalBaud); err != nil {
					continue
				}
				got, err := b.t.ReadOne(newID, idEntry.Address, idEntry.Width)
				if err == nil && byte(got) == newID {
					ok = true
					break
				}
			}
			if !ok {
				return ErrBaudWriteFailed
			}
		} else if err := b.t.SetBaudRate(CanonicalBaud); err != nil {
			return errors.Wrap(err, "configure: set canonical baud")
		}

		scratchID := untaken[i]
		idPayload, err := encodeValue(int32(scratchID), idEntry.Width)
		if err != nil {
			return err
		}
		if err := b.t.WriteOne(newID, idEntry.Address, idPayload); err != nil {
			return ErrIDWriteFailed
		}
		got, err := b.t.ReadOne(scratchID, idEntry.Address, idEntry.Width)
		if err != nil || byte(got) != scratchID {
			return ErrIDWriteFailed
		}
		relabeled[scratchID] = true
	}

	if err := b.t.SetBaudRate(CanonicalBaud); err != nil {
		return errors.Wrap(err, "configure: set canonical baud")
	}
	for i, m := range b.motors {
		idPayload, err := encodeValue(int32(m.ID), idEntry.Width)
		if err != nil {
			return err
		}
		if err := b.t.WriteOne(untaken[i], idEntry.Address, idPayload); err != nil {
			return ErrIDWriteFailed
		}
	}
	for _, m := range b.motors {
		got, err := b.t.ReadOne(m.ID, idEntry.Address, idEntry.Width)
		if err != nil || byte(got) != m.ID {
			return ErrIDWriteFailed
		}
	}
	return nil
}
