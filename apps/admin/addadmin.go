package main

import "context"

func (cli *commandLine) addAdmin(email string) error {
	usr, err := cli.usrSvc.PromoteAdmin(context.Background(), email)
	if err != nil {
		return err
	}
	std.Printf("%s is now an admin\n", usr.Email)
	return nil
}
