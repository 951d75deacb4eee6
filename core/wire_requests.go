package core

import (
	"crypto/sha256"
	"fmt"
)

// EncodeRequest writes the canonical, self-describing encoding of a request.
// Each top-level request is encoded with a fresh Encoder: shared tables are
// never carried across requests, so the same logical value always produces
// the same bytes regardless of what was encoded before it.
func EncodeRequest(r Request) ([]byte, error) {
	e := NewEncoder()
	if err := e.writeRequest(r); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

func (e *Encoder) writeRequest(r Request) error {
	switch v := r.(type) {
	case *JarStoreInitialRequest:
		e.writeByte(selReqJarStoreInitial)
		e.writeUint32(uint32(len(v.Jar)))
		e.writeBytes(v.Jar)
		e.writeUint32(uint32(len(v.Dependencies)))
		for _, d := range v.Dependencies {
			e.writeTR(d)
		}
	case *GameteCreationRequest:
		e.writeByte(selReqGameteCreation)
		e.writeTR(v.Classpath)
		e.writeBigInt(v.InitialGreen)
		e.writeBigInt(v.InitialRed)
		e.writeUint32(uint32(len(v.PublicKey)))
		e.writeBytes(v.PublicKey)
	case *InitializationRequest:
		e.writeByte(selReqInitialization)
		e.writeTR(v.Classpath)
		e.writeSR(v.Manifest)
	case *JarStoreRequest:
		e.writeByte(selReqJarStore)
		e.writeNonInitialCommon(v.nonInitialCommon)
		e.writeTR(v.Classpath)
		e.writeUint32(uint32(len(v.Jar)))
		e.writeBytes(v.Jar)
		e.writeUint32(uint32(len(v.Dependencies)))
		for _, d := range v.Dependencies {
			e.writeTR(d)
		}
	case *ConstructorCallRequest:
		e.writeByte(selReqConstructorCall)
		e.writeNonInitialCommon(v.nonInitialCommon)
		e.writeTR(v.Classpath)
		e.writeCodeSignature(v.Constructor)
		if err := e.writeActuals(v.Actuals); err != nil {
			return err
		}
	case *InstanceMethodCallRequest:
		e.writeByte(selReqInstanceMethodCall)
		e.writeNonInitialCommon(v.nonInitialCommon)
		e.writeTR(v.Classpath)
		e.writeSR(v.Receiver)
		e.writeCodeSignature(v.Method)
		if err := e.writeActuals(v.Actuals); err != nil {
			return err
		}
	case *StaticMethodCallRequest:
		e.writeByte(selReqStaticMethodCall)
		e.writeNonInitialCommon(v.nonInitialCommon)
		e.writeTR(v.Classpath)
		e.writeCodeSignature(v.Method)
		if err := e.writeActuals(v.Actuals); err != nil {
			return err
		}
	default:
		return fmt.Errorf("encode: unknown request type %T", r)
	}
	return nil
}

func (e *Encoder) writeActuals(actuals []StorageValue) error {
	e.writeUint32(uint32(len(actuals)))
	for _, a := range actuals {
		if err := e.writeStorageValue(a); err != nil {
			return err
		}
	}
	return nil
}

// writeNonInitialCommon writes the caller/nonce/chain-id/gas/signature fields
// shared by the four signed request variants. The signature itself is
// written as a plain length-prefixed blob (never interned: it is unique per
// request by construction, and TRHash always erases it before hashing).
func (e *Encoder) writeNonInitialCommon(c nonInitialCommon) {
	e.writeSR(c.Caller)
	e.writeUint64(c.Nonce)
	e.writeSharedString(c.ChainID)
	e.writeUint64(c.GasLimit)
	e.writeUint64(c.GasPrice)
	e.writeUint32(uint32(len(c.Signer)))
	e.writeBytes(c.Signer)
	e.writeUint32(uint32(len(c.Signature)))
	e.writeBytes(c.Signature)
}

// DecodeRequest parses a canonical request encoding produced by EncodeRequest.
func DecodeRequest(b []byte) (Request, error) {
	d := NewDecoder(b)
	r, err := d.readRequest()
	if err != nil {
		return nil, err
	}
	if d.Len() != 0 {
		return nil, fmt.Errorf("decode: %d trailing bytes after request", d.Len())
	}
	return r, nil
}

func (d *Decoder) readRequest() (Request, error) {
	sel, err := d.readByte()
	if err != nil {
		return nil, err
	}
	switch sel {
	case selReqJarStoreInitial:
		jarLen, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		jar, err := d.readBytes(int(jarLen))
		if err != nil {
			return nil, err
		}
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		deps := make([]TransactionReference, n)
		for i := range deps {
			if deps[i], err = d.readTR(); err != nil {
				return nil, err
			}
		}
		return &JarStoreInitialRequest{Jar: jar, Dependencies: deps}, nil
	case selReqGameteCreation:
		cp, err := d.readTR()
		if err != nil {
			return nil, err
		}
		green, err := d.readBigInt()
		if err != nil {
			return nil, err
		}
		red, err := d.readBigInt()
		if err != nil {
			return nil, err
		}
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		key, err := d.readBytes(int(n))
		if err != nil {
			return nil, err
		}
		return &GameteCreationRequest{Classpath: cp, InitialGreen: green, InitialRed: red, PublicKey: key}, nil
	case selReqInitialization:
		cp, err := d.readTR()
		if err != nil {
			return nil, err
		}
		manifest, err := d.readSR()
		if err != nil {
			return nil, err
		}
		return &InitializationRequest{Classpath: cp, Manifest: manifest}, nil
	case selReqJarStore:
		common, err := d.readNonInitialCommon()
		if err != nil {
			return nil, err
		}
		cp, err := d.readTR()
		if err != nil {
			return nil, err
		}
		jarLen, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		jar, err := d.readBytes(int(jarLen))
		if err != nil {
			return nil, err
		}
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		deps := make([]TransactionReference, n)
		for i := range deps {
			if deps[i], err = d.readTR(); err != nil {
				return nil, err
			}
		}
		return &JarStoreRequest{nonInitialCommon: common, Classpath: cp, Jar: jar, Dependencies: deps}, nil
	case selReqConstructorCall:
		common, err := d.readNonInitialCommon()
		if err != nil {
			return nil, err
		}
		cp, err := d.readTR()
		if err != nil {
			return nil, err
		}
		ctor, err := d.readCodeSignature()
		if err != nil {
			return nil, err
		}
		actuals, err := d.readActuals()
		if err != nil {
			return nil, err
		}
		return &ConstructorCallRequest{nonInitialCommon: common, Classpath: cp, Constructor: ctor, Actuals: actuals}, nil
	case selReqInstanceMethodCall:
		common, err := d.readNonInitialCommon()
		if err != nil {
			return nil, err
		}
		cp, err := d.readTR()
		if err != nil {
			return nil, err
		}
		recv, err := d.readSR()
		if err != nil {
			return nil, err
		}
		method, err := d.readCodeSignature()
		if err != nil {
			return nil, err
		}
		actuals, err := d.readActuals()
		if err != nil {
			return nil, err
		}
		return &InstanceMethodCallRequest{nonInitialCommon: common, Classpath: cp, Receiver: recv, Method: method, Actuals: actuals}, nil
	case selReqStaticMethodCall:
		common, err := d.readNonInitialCommon()
		if err != nil {
			return nil, err
		}
		cp, err := d.readTR()
		if err != nil {
			return nil, err
		}
		method, err := d.readCodeSignature()
		if err != nil {
			return nil, err
		}
		actuals, err := d.readActuals()
		if err != nil {
			return nil, err
		}
		return &StaticMethodCallRequest{nonInitialCommon: common, Classpath: cp, Method: method, Actuals: actuals}, nil
	default:
		return nil, fmt.Errorf("decode: unknown request selector %d", sel)
	}
}

func (d *Decoder) readActuals() ([]StorageValue, error) {
	n, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	actuals := make([]StorageValue, n)
	for i := range actuals {
		if actuals[i], err = d.readStorageValue(); err != nil {
			return nil, err
		}
	}
	return actuals, nil
}

func (d *Decoder) readNonInitialCommon() (nonInitialCommon, error) {
	caller, err := d.readSR()
	if err != nil {
		return nonInitialCommon{}, err
	}
	nonce, err := d.readUint64()
	if err != nil {
		return nonInitialCommon{}, err
	}
	chainID, err := d.readSharedString()
	if err != nil {
		return nonInitialCommon{}, err
	}
	gasLimit, err := d.readUint64()
	if err != nil {
		return nonInitialCommon{}, err
	}
	gasPrice, err := d.readUint64()
	if err != nil {
		return nonInitialCommon{}, err
	}
	signerLen, err := d.readUint32()
	if err != nil {
		return nonInitialCommon{}, err
	}
	signer, err := d.readBytes(int(signerLen))
	if err != nil {
		return nonInitialCommon{}, err
	}
	sigLen, err := d.readUint32()
	if err != nil {
		return nonInitialCommon{}, err
	}
	sig, err := d.readBytes(int(sigLen))
	if err != nil {
		return nonInitialCommon{}, err
	}
	return nonInitialCommon{
		Caller:    caller,
		Nonce:     nonce,
		ChainID:   chainID,
		GasLimit:  gasLimit,
		GasPrice:  gasPrice,
		Signature: sig,
		Signer:    signer,
	}, nil
}

// TRHash computes the transaction reference of a request: the SHA-256 digest
// of its canonical encoding with the signature erased for signed variants
// (§6). Two requests that are identical except for their signature bytes
// hash to the same TR, which is what lets the node deduplicate retransmitted
// signed copies of the same logical request.
func TRHash(r Request) (TransactionReference, error) {
	canon := r
	if nr, ok := r.(NonInitialRequest); ok {
		canon = nr.WithoutSignature()
	}
	b, err := EncodeRequest(canon)
	if err != nil {
		return TransactionReference{}, fmt.Errorf("transaction reference hash: %w", err)
	}
	return TransactionReference(sha256.Sum256(b)), nil
}
