package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sealmail/internal/client/client"
	"github.com/dmitrijs2005/sealmail/internal/client/mail"
	"github.com/dmitrijs2005/sealmail/internal/client/services"
	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/contract"
	"github.com/dmitrijs2005/sealmail/internal/identity"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword
var getMultiline = GetMultiline

// Key file indirections, swapped in tests.
var generateKeyFile = services.GenerateKeyFile
var loadKeyFile = services.LoadKeyFile

// Keygen creates the key file named in the config and prints the public key.
func (a *App) Keygen(ctx context.Context) error {
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	pub, err := generateKeyFile(a.config.KeyFile, password)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Key written to %s\nPublic key: %s\n", a.config.KeyFile, pub)
	return nil
}

// Register creates an account bound to the public key in the key file. The
// key file is created first when missing, under the same password.
func (a *App) Register(ctx context.Context) error {
	handle, err := getSimpleText(a.reader, "Enter handle", a.out)
	if err != nil {
		return err
	}
	handle = identity.Normalize(handle)

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	_, pub, err := loadKeyFile(a.config.KeyFile, password)
	if err != nil {
		pub, err = generateKeyFile(a.config.KeyFile, password)
		if err != nil {
			return fmt.Errorf("key file: %w", err)
		}
		fmt.Fprintf(a.out, "Key written to %s\n", a.config.KeyFile)
	}

	addr, err := a.authService.Register(ctx, handle, password, pub)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Registered %s as %s\n", identity.Display(handle), addr)
	return nil
}

// Login prompts for credentials and unlocks the key file.
//
// An online login is tried first. If the server is unavailable it falls back
// to the session stored by the last online login and the App goes offline;
// if that fails too the App is disabled.
func (a *App) Login(ctx context.Context) error {
	handle, err := getSimpleText(a.reader, "Enter handle", a.out)
	if err != nil {
		return err
	}
	handle = identity.Normalize(handle)

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	mode := ModeOnline
	session, err := a.authService.OnlineLogin(ctx, handle, password)
	if errors.Is(err, client.ErrUnavailable) {
		a.logger.Warn(ctx, "server unavailable, trying offline login")
		mode = ModeOffline
		session, err = a.authService.OfflineLogin(ctx, handle, password)
	}
	if err != nil {
		if mode == ModeOffline {
			a.setMode(ModeDisabled)
		}
		a.logger.Error(ctx, "login unsuccessful", "error", err)
		return err
	}

	priv, pub, err := loadKeyFile(a.config.KeyFile, password)
	if err != nil {
		return fmt.Errorf("key file: %w", err)
	}
	if want := contract.AddressFromPublicKey(pub); session.Address != "" && session.Address != want {
		return fmt.Errorf("key file %s does not belong to %s", a.config.KeyFile, identity.Display(handle))
	}

	a.session = session
	a.userName = handle
	a.mail = a.newMail(mail.Account{Handle: handle, Address: session.Address, Private: priv, Public: pub})
	a.setMode(mode)
	a.logger.Info(ctx, "login successful", "handle", handle, "mode", mode)
	return nil
}

// Logout forgets the stored session and the unlocked key.
func (a *App) Logout(ctx context.Context) error {
	if err := a.authService.ClearOfflineData(ctx); err != nil {
		return err
	}
	a.mail = nil
	a.session = nil
	a.userName = ""
	return nil
}
