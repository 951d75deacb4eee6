package core

import "fmt"

// EncodeResponse writes the canonical encoding of a response, choosing the
// most compact selector the variant and its field values allow (§4.G): a
// constructor/method/void-method success with no events and no
// self-charging, or a non-void method success with exactly one event and
// no self-charging, collapses onto selectors 10-13 instead of carrying an
// explicit event-count field.
func EncodeResponse(r Response) ([]byte, error) {
	e := NewEncoder()
	if err := e.writeResponse(r); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

func (e *Encoder) writeCause(c Cause) {
	e.writeSharedString(c.ClassOfCause)
	e.writeUTF(c.MessageOfCause)
	e.writeUTF(c.Where)
}

func (d *Decoder) readCause() (Cause, error) {
	cls, err := d.readSharedString()
	if err != nil {
		return Cause{}, err
	}
	msg, err := d.readUTF()
	if err != nil {
		return Cause{}, err
	}
	where, err := d.readUTF()
	if err != nil {
		return Cause{}, err
	}
	return Cause{ClassOfCause: cls, MessageOfCause: msg, Where: where}, nil
}

func (e *Encoder) writeGas(g GasConsumed) {
	e.writeUint64(g.CPU)
	e.writeUint64(g.RAM)
	e.writeUint64(g.Storage)
	e.writeUint64(g.Penalty)
}

func (d *Decoder) readGas() (GasConsumed, error) {
	cpu, err := d.readUint64()
	if err != nil {
		return GasConsumed{}, err
	}
	ram, err := d.readUint64()
	if err != nil {
		return GasConsumed{}, err
	}
	storage, err := d.readUint64()
	if err != nil {
		return GasConsumed{}, err
	}
	penalty, err := d.readUint64()
	if err != nil {
		return GasConsumed{}, err
	}
	return GasConsumed{CPU: cpu, RAM: ram, Storage: storage, Penalty: penalty}, nil
}

func (e *Encoder) writeUpdates(us []Update) error {
	e.writeUint32(uint32(len(us)))
	for _, u := range us {
		if err := e.writeUpdate(u); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) writeUpdate(u Update) error {
	switch v := u.(type) {
	case ClassTagUpdate:
		e.writeByte(selUpdateClassTag)
		e.writeSR(v.Obj)
		e.writeSharedString(v.ClassName)
		e.writeTR(v.Jar)
	case FieldUpdate:
		e.writeByte(selUpdateField)
		e.writeSR(v.Obj)
		e.writeFieldSignature(v.Field)
		if err := e.writeStorageValue(v.Value); err != nil {
			return err
		}
	default:
		return fmt.Errorf("encode: unknown update type %T", u)
	}
	return nil
}

func (d *Decoder) readUpdates() ([]Update, error) {
	n, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	us := make([]Update, n)
	for i := range us {
		if us[i], err = d.readUpdate(); err != nil {
			return nil, err
		}
	}
	return us, nil
}

func (d *Decoder) readUpdate() (Update, error) {
	sel, err := d.readByte()
	if err != nil {
		return nil, err
	}
	switch sel {
	case selUpdateClassTag:
		obj, err := d.readSR()
		if err != nil {
			return nil, err
		}
		className, err := d.readSharedString()
		if err != nil {
			return nil, err
		}
		jar, err := d.readTR()
		if err != nil {
			return nil, err
		}
		return ClassTagUpdate{Obj: obj, ClassName: className, Jar: jar}, nil
	case selUpdateField:
		obj, err := d.readSR()
		if err != nil {
			return nil, err
		}
		field, err := d.readFieldSignature()
		if err != nil {
			return nil, err
		}
		val, err := d.readStorageValue()
		if err != nil {
			return nil, err
		}
		return FieldUpdate{Obj: obj, Field: field, Value: val}, nil
	default:
		return nil, fmt.Errorf("decode: unknown update selector %d", sel)
	}
}

func (e *Encoder) writeEvents(ev []StorageReference) {
	e.writeUint32(uint32(len(ev)))
	for _, s := range ev {
		e.writeSR(s)
	}
}

func (d *Decoder) readEvents() ([]StorageReference, error) {
	n, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	ev := make([]StorageReference, n)
	for i := range ev {
		if ev[i], err = d.readSR(); err != nil {
			return nil, err
		}
	}
	return ev, nil
}

func (e *Encoder) writeResponse(r Response) error {
	switch v := r.(type) {
	case *GameteCreationResponse:
		e.writeByte(selRespGameteCreation)
		if err := e.writeUpdates(v.Updates); err != nil {
			return err
		}
		e.writeSR(v.NewGamete)
	case *JarStoreInitialResponse:
		e.writeByte(selRespJarStoreInitial)
		e.writeUint32(uint32(len(v.InstrumentedJar)))
		e.writeBytes(v.InstrumentedJar)
		e.writeUint32(uint32(len(v.Dependencies)))
		for _, d := range v.Dependencies {
			e.writeTR(d)
		}
	case *InitializationResponse:
		e.writeByte(selRespInitialization)
	case *JarStoreSuccessfulResponse:
		e.writeByte(selRespJarStoreSuccessful)
		if err := e.writeUpdates(v.Updates); err != nil {
			return err
		}
		e.writeGas(v.Gas)
		e.writeUint32(uint32(len(v.InstrumentedJar)))
		e.writeBytes(v.InstrumentedJar)
	case *JarStoreFailedResponse:
		e.writeByte(selRespJarStoreFailed)
		if err := e.writeUpdates(v.Updates); err != nil {
			return err
		}
		e.writeGas(v.Gas)
		e.writeCause(v.Cause)
	case *ConstructorCallSuccessfulResponse:
		sel := selRespConstructorCallSuccessful
		if !v.SelfCharged && len(v.Events) == 0 {
			sel = selRespConstructorCallSuccessfulNoEvents
		}
		e.writeByte(sel)
		if err := e.writeUpdates(v.Updates); err != nil {
			return err
		}
		if sel == selRespConstructorCallSuccessful {
			e.writeEvents(v.Events)
			e.writeByte(boolByte(v.SelfCharged))
		}
		e.writeGas(v.Gas)
		e.writeSR(v.NewObject)
	case *ConstructorCallExceptionResponse:
		e.writeByte(selRespConstructorCallException)
		if err := e.writeUpdates(v.Updates); err != nil {
			return err
		}
		e.writeEvents(v.Events)
		e.writeGas(v.Gas)
		e.writeCause(v.Cause)
	case *ConstructorCallFailedResponse:
		e.writeByte(selRespConstructorCallFailed)
		if err := e.writeUpdates(v.Updates); err != nil {
			return err
		}
		e.writeGas(v.Gas)
		e.writeCause(v.Cause)
	case *MethodCallSuccessfulResponse:
		sel := selRespMethodCallSuccessful
		if !v.SelfCharged {
			switch len(v.Events) {
			case 0:
				sel = selRespMethodCallSuccessfulNoEventsNoSelfCharged
			case 1:
				sel = selRespMethodCallSuccessfulOneEventNoSelfCharged
			}
		}
		e.writeByte(sel)
		if err := e.writeUpdates(v.Updates); err != nil {
			return err
		}
		switch sel {
		case selRespMethodCallSuccessful:
			e.writeEvents(v.Events)
			e.writeByte(boolByte(v.SelfCharged))
		case selRespMethodCallSuccessfulOneEventNoSelfCharged:
			e.writeSR(v.Events[0])
		}
		e.writeGas(v.Gas)
		if err := e.writeStorageValue(v.Result); err != nil {
			return err
		}
	case *VoidMethodCallSuccessfulResponse:
		sel := selRespVoidMethodCallSuccessful
		if !v.SelfCharged && len(v.Events) == 0 {
			sel = selRespVoidMethodCallSuccessfulNoEventsNoSelfCharged
		}
		e.writeByte(sel)
		if err := e.writeUpdates(v.Updates); err != nil {
			return err
		}
		if sel == selRespVoidMethodCallSuccessful {
			e.writeEvents(v.Events)
			e.writeByte(boolByte(v.SelfCharged))
		}
		e.writeGas(v.Gas)
	case *MethodCallExceptionResponse:
		e.writeByte(selRespMethodCallException)
		if err := e.writeUpdates(v.Updates); err != nil {
			return err
		}
		e.writeEvents(v.Events)
		e.writeGas(v.Gas)
		e.writeCause(v.Cause)
	case *MethodCallFailedResponse:
		e.writeByte(selRespMethodCallFailed)
		if err := e.writeUpdates(v.Updates); err != nil {
			return err
		}
		e.writeGas(v.Gas)
		e.writeCause(v.Cause)
	default:
		return fmt.Errorf("encode: unknown response type %T", r)
	}
	return nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// DecodeResponse parses a canonical response encoding produced by
// EncodeResponse.
func DecodeResponse(b []byte) (Response, error) {
	d := NewDecoder(b)
	r, err := d.readResponse()
	if err != nil {
		return nil, err
	}
	if d.Len() != 0 {
		return nil, fmt.Errorf("decode: %d trailing bytes after response", d.Len())
	}
	return r, nil
}

func (d *Decoder) readResponse() (Response, error) {
	sel, err := d.readByte()
	if err != nil {
		return nil, err
	}
	switch sel {
	case selRespGameteCreation:
		updates, err := d.readUpdates()
		if err != nil {
			return nil, err
		}
		gamete, err := d.readSR()
		if err != nil {
			return nil, err
		}
		return &GameteCreationResponse{Updates: updates, NewGamete: gamete}, nil
	case selRespJarStoreInitial:
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		jar, err := d.readBytes(int(n))
		if err != nil {
			return nil, err
		}
		nd, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		deps := make([]TransactionReference, nd)
		for i := range deps {
			if deps[i], err = d.readTR(); err != nil {
				return nil, err
			}
		}
		return &JarStoreInitialResponse{InstrumentedJar: jar, Dependencies: deps}, nil
	case selRespInitialization:
		return &InitializationResponse{}, nil
	case selRespJarStoreSuccessful:
		updates, err := d.readUpdates()
		if err != nil {
			return nil, err
		}
		gas, err := d.readGas()
		if err != nil {
			return nil, err
		}
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		jar, err := d.readBytes(int(n))
		if err != nil {
			return nil, err
		}
		return &JarStoreSuccessfulResponse{Updates: updates, Gas: gas, InstrumentedJar: jar}, nil
	case selRespJarStoreFailed:
		updates, err := d.readUpdates()
		if err != nil {
			return nil, err
		}
		gas, err := d.readGas()
		if err != nil {
			return nil, err
		}
		cause, err := d.readCause()
		if err != nil {
			return nil, err
		}
		return &JarStoreFailedResponse{Updates: updates, Gas: gas, Cause: cause}, nil
	case selRespConstructorCallSuccessful, selRespConstructorCallSuccessfulNoEvents:
		updates, err := d.readUpdates()
		if err != nil {
			return nil, err
		}
		var events []StorageReference
		selfCharged := false
		if sel == selRespConstructorCallSuccessful {
			if events, err = d.readEvents(); err != nil {
				return nil, err
			}
			b, err := d.readByte()
			if err != nil {
				return nil, err
			}
			selfCharged = b == 1
		}
		gas, err := d.readGas()
		if err != nil {
			return nil, err
		}
		obj, err := d.readSR()
		if err != nil {
			return nil, err
		}
		return &ConstructorCallSuccessfulResponse{Updates: updates, Events: events, Gas: gas, NewObject: obj, SelfCharged: selfCharged}, nil
	case selRespConstructorCallException:
		updates, err := d.readUpdates()
		if err != nil {
			return nil, err
		}
		events, err := d.readEvents()
		if err != nil {
			return nil, err
		}
		gas, err := d.readGas()
		if err != nil {
			return nil, err
		}
		cause, err := d.readCause()
		if err != nil {
			return nil, err
		}
		return &ConstructorCallExceptionResponse{Updates: updates, Events: events, Gas: gas, Cause: cause}, nil
	case selRespConstructorCallFailed:
		updates, err := d.readUpdates()
		if err != nil {
			return nil, err
		}
		gas, err := d.readGas()
		if err != nil {
			return nil, err
		}
		cause, err := d.readCause()
		if err != nil {
			return nil, err
		}
		return &ConstructorCallFailedResponse{Updates: updates, Gas: gas, Cause: cause}, nil
	case selRespMethodCallSuccessful, selRespMethodCallSuccessfulNoEventsNoSelfCharged, selRespMethodCallSuccessfulOneEventNoSelfCharged:
		updates, err := d.readUpdates()
		if err != nil {
			return nil, err
		}
		var events []StorageReference
		selfCharged := false
		switch sel {
		case selRespMethodCallSuccessful:
			if events, err = d.readEvents(); err != nil {
				return nil, err
			}
			b, err := d.readByte()
			if err != nil {
				return nil, err
			}
			selfCharged = b == 1
		case selRespMethodCallSuccessfulOneEventNoSelfCharged:
			sr, err := d.readSR()
			if err != nil {
				return nil, err
			}
			events = []StorageReference{sr}
		}
		gas, err := d.readGas()
		if err != nil {
			return nil, err
		}
		result, err := d.readStorageValue()
		if err != nil {
			return nil, err
		}
		return &MethodCallSuccessfulResponse{Updates: updates, Events: events, Gas: gas, Result: result, SelfCharged: selfCharged}, nil
	case selRespVoidMethodCallSuccessful, selRespVoidMethodCallSuccessfulNoEventsNoSelfCharged:
		updates, err := d.readUpdates()
		if err != nil {
			return nil, err
		}
		var events []StorageReference
		selfCharged := false
		if sel == selRespVoidMethodCallSuccessful {
			if events, err = d.readEvents(); err != nil {
				return nil, err
			}
			b, err := d.readByte()
			if err != nil {
				return nil, err
			}
			selfCharged = b == 1
		}
		gas, err := d.readGas()
		if err != nil {
			return nil, err
		}
		return &VoidMethodCallSuccessfulResponse{Updates: updates, Events: events, Gas: gas, SelfCharged: selfCharged}, nil
	case selRespMethodCallException:
		updates, err := d.readUpdates()
		if err != nil {
			return nil, err
		}
		events, err := d.readEvents()
		if err != nil {
			return nil, err
		}
		gas, err := d.readGas()
		if err != nil {
			return nil, err
		}
		cause, err := d.readCause()
		if err != nil {
			return nil, err
		}
		return &MethodCallExceptionResponse{Updates: updates, Events: events, Gas: gas, Cause: cause}, nil
	case selRespMethodCallFailed:
		updates, err := d.readUpdates()
		if err != nil {
			return nil, err
		}
		gas, err := d.readGas()
		if err != nil {
			return nil, err
		}
		cause, err := d.readCause()
		if err != nil {
			return nil, err
		}
		return &MethodCallFailedResponse{Updates: updates, Gas: gas, Cause: cause}, nil
	default:
		return nil, fmt.Errorf("decode: unknown response selector %d", sel)
	}
}
